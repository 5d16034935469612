package sqlinline

// QUpsertBillingEvent keeps one row per asset; a repeated call replaces cost, call count
// and status but keeps the original created_at so the charge stays in its month.
const QUpsertBillingEvent = `--sql 708ca9b8-d237-4f1b-978e-86386b2d46ee
insert into billing_events (asset_id, cost_cents, api_calls, status, created_at)
values ($1::uuid, $2::bigint, $3::int, $4::text, $5::timestamptz)
on conflict (asset_id) do update set
    cost_cents = excluded.cost_cents,
    api_calls  = excluded.api_calls,
    status     = excluded.status;
`

const QSumBillingBetween = `--sql 6670b3f0-886c-4249-80bf-eb69f4e0b222
select coalesce(sum(cost_cents), 0)::bigint
from billing_events
where created_at >= $1::timestamptz
  and created_at < $2::timestamptz;
`

const QSelectBillingEvent = `--sql 90b09efb-e39e-4957-82b9-82a67939e630
select asset_id::text as asset_id, cost_cents, api_calls, status, created_at
from billing_events
where asset_id = $1::uuid;
`
