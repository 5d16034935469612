package sqlinline

const QInsertAsset = `--sql 59f3ee45-07e6-49a0-a229-505bbf825014
insert into assets (id, project_id, source_sketch_id, prompt, status, created_at, updated_at)
values ($1::uuid, $2::text, $3::text, $4::text, $5::text, $6::timestamptz, $6::timestamptz);
`

const QSelectAssetByID = `--sql 23dacde4-f674-4192-9528-de58f9f3f2da
select
  id::text as id,
  project_id,
  source_sketch_id,
  prompt,
  status,
  storage_url,
  error_code,
  error_message,
  ai_model_version,
  generation_seed,
  processing_time_ms,
  created_at,
  updated_at
from assets
where id = $1::uuid;
`

// QUpdateAssetStatus is a compare-and-set on status: zero rows means the asset moved
// (or does not exist) since it was read.
const QUpdateAssetStatus = `--sql d493e932-430a-4f20-b8b0-de68c1d5e1e1
update assets
set status             = $3::text,
    storage_url        = coalesce($4::text, storage_url),
    error_code         = coalesce($5::text, error_code),
    error_message      = coalesce($6::text, error_message),
    ai_model_version   = coalesce($7::text, ai_model_version),
    generation_seed    = coalesce($8::bigint, generation_seed),
    processing_time_ms = coalesce($9::bigint, processing_time_ms),
    updated_at         = $10::timestamptz
where id = $1::uuid
  and status = $2::text
returning
  id::text as id,
  project_id,
  source_sketch_id,
  prompt,
  status,
  storage_url,
  error_code,
  error_message,
  ai_model_version,
  generation_seed,
  processing_time_ms,
  created_at,
  updated_at;
`

const QDeleteAsset = `--sql 3f6b1a8e-52c4-4d0e-9a57-2c1e7d4b9f60
delete from assets
where id = $1::uuid;
`
