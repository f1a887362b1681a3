package config

import (
	"os"

	"github.com/rotisserie/eris"
)

// Template is the commented default configuration written by
// `hades config init`. A test keeps it in sync with the Load defaults.
const Template = `# hades configuration
#
# Every key can also be set through the environment with the HADES_ prefix,
# e.g. HADES_STORE_DRIVER=postgres or HADES_BUDGET_INTENT_WEEKLY=750.

store:
  # sqlite (default) or postgres
  driver: sqlite
  # sqlite database file
  path: hades.db
  # postgres connection string, used when driver is postgres
  database_url: ""

provider:
  # lead provider API endpoint and bearer token
  base_url: ""
  token: ""
  page_size: 100
  # requests per second and burst for the client-side throttle
  rate_limit: 5
  burst: 5
  timeout_secs: 30
  max_retries: 3

scoring:
  # composite weights are normalized by their sum, so they need not add to 1
  intent_weights:
    signal: 0.50
    onsite: 0.25
    freshness: 0.25
  geo_weights:
    proximity: 0.50
    onsite: 0.30
    employee: 0.20
  # SIC codes by on-site service likelihood; unmapped codes contribute zero
  sic_onsite_table:
    high: ["1521", "1711", "1731", "0782", "7349"]
    medium: ["5411", "5812", "8011"]
    low: ["6411", "7372", "8721"]
  # inclusive upper age bound (days) per tier; older signals are stale
  # and filtered out of the batch
  freshness_tiers:
    hot_max_days: 3
    warm_max_days: 7
    cooling_max_days: 14
  # proximity decays linearly from 100 at 0 miles to 0 at this radius
  search_radius_miles: 50
  # employee-count floors mapped to scale values in [0,100]
  employee_scale:
    - { min: 10, value: 25 }
    - { min: 25, value: 40 }
    - { min: 50, value: 55 }
    - { min: 100, value: 70 }
    - { min: 200, value: 85 }
    - { min: 500, value: 100 }
  # geography search origin, used to derive distance from coordinates
  # when the provider omits distance_miles (0/0 disables derivation)
  origin_lat: 0
  origin_lng: 0

icp:
  # leads below this employee count are excluded before scoring
  employee_min: 10
  # optional SIC allowlist; empty admits every industry
  sic_whitelist: []

dedup:
  # compare phone and company-name tiers across intent and geography batches
  cross_workflow: true
  # drop leads already exported instead of only flagging them
  exclude_exported: false

budget:
  # weekly credit caps per workflow (1 credit = 1 lead returned)
  intent_weekly: 500
  geo_weekly: 500
  # band boundaries for usage alerts, as fractions of the cap
  alert_thresholds: [0.5, 0.8, 0.95]
  # optional webhook that receives band-crossing alerts as JSON
  webhook_url: ""

server:
  port: 8080

log:
  # debug, info, warn, error
  level: info
  # json or console
  format: json
`

// WriteTemplate writes the commented default configuration to path. It
// refuses to overwrite an existing file unless force is set.
func WriteTemplate(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return eris.Errorf("config: %s already exists (use --force to overwrite)", path)
		}
	}
	return eris.Wrap(os.WriteFile(path, []byte(Template), 0o644), "config: write template")
}
