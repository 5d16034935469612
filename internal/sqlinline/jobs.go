package sqlinline

const jobColumns = `
  id::text as id,
  asset_id::text as asset_id,
  source_image,
  source_mime,
  prompt,
  requested_quality,
  style,
  seed,
  provider,
  fallbacks,
  priority,
  status,
  attempts,
  max_attempts,
  last_error,
  cancel_requested,
  run_at,
  created_at,
  updated_at
`

const QEnqueueJob = `--sql 83fd959b-ecf9-445f-8ea8-93da33ec9e56
insert into generation_jobs (
  id, asset_id, source_image, source_mime, prompt, requested_quality, style, seed,
  provider, fallbacks, priority, status, max_attempts, run_at, created_at, updated_at
)
values (
  $1::uuid, $2::uuid, $3::bytea, $4::text, $5::text, $6::text, $7::text, $8::bigint,
  $9::text, $10::text[], $11::int, 'queued', $12::int, $13::timestamptz, $13::timestamptz, $13::timestamptz
);
`

const QClaimJob = `--sql fe735500-f71e-49a0-997e-1d8d1d370ed1
with next_job as (
    select id
    from generation_jobs
    where status = 'queued'
      and run_at <= now()
    order by priority desc, run_at asc, created_at asc
    for update skip locked
    limit 1
)
update generation_jobs
set status = 'running', attempts = attempts + 1, updated_at = now()
where id in (select id from next_job)
returning` + jobColumns + `;
`

const QCompleteJob = `--sql 299557ca-9922-4ac5-8de0-13b3b48aadfa
update generation_jobs
set status = 'done', source_image = ''::bytea, updated_at = now()
where id = $1::uuid and status = 'running';
`

const QRetryJob = `--sql c861879a-0ae3-4645-a102-6d7bd8786a28
update generation_jobs
set status = 'queued', run_at = $2::timestamptz, last_error = $3::text, updated_at = now()
where id = $1::uuid and status = 'running';
`

const QFailJob = `--sql 8d7aa7ca-2235-4e46-a602-13485ef2d07b
update generation_jobs
set status = 'dead', source_image = ''::bytea, last_error = $2::text, updated_at = now()
where id = $1::uuid and status = 'running';
`

const QDeleteQueuedJob = `--sql 5f344c60-7da8-431c-b7d4-651adfc9b9ba
delete from generation_jobs
where id = $1::uuid and status = 'queued'
returning asset_id::text;
`

const QRequestJobCancel = `--sql 1f01cb7c-cb84-4611-95ab-c45808caa4f8
update generation_jobs
set cancel_requested = true, updated_at = now()
where id = $1::uuid and status = 'running'
returning asset_id::text;
`

const QSelectJobCancelRequested = `--sql eaf8e328-788a-4018-bf71-01aa592efa7f
select cancel_requested
from generation_jobs
where id = $1::uuid;
`

const QCountQueuedJobs = `--sql eb961dd5-0159-4e34-ac03-0bc1a40552aa
select count(*)
from generation_jobs
where status = 'queued';
`

const QSelectJobByID = `--sql 21aaee1b-85d1-4bc9-a23f-7fa14e06c35e
select` + jobColumns + `
from generation_jobs
where id = $1::uuid;
`

const QPurgeFinishedJobs = `--sql 6b0e2d47-93c1-4f5a-8d2e-71c4a9b3e05f
delete from generation_jobs
where status in ('done', 'dead')
  and updated_at < $1::timestamptz;
`
