package config

// DEV_YAML is written to ./dev/config/.walkwithme.dev.yaml the first time the
// CLI runs with --dev. Timings are short so a whole walk fits in a couple of
// minutes.
const DEV_YAML = `
walk:
  mode: recurring
  checkInterval: 1m
  gracePeriod: 20s
  tickInterval: 1s
  locationTimeout: 5s

shake:
  threshold: 15
  debounce: 500ms

location:
  maxAge: 30s
  fallback:
    latitude: 40.7128
    longitude: -74.0060

listener:
  port: 3000

sqlite:
  dir:

cron:
  timeZone: "America/Toronto"

notify:
  simulatedDelay: 500ms

logging:
  level: debug
  file: dev/walkwithme.log

google:
  storage:
    bucket: "walkwithme"
    prefix: "walkwithme-dev"
    sqliteBackupSchedule: "*/30 * * * *"
    enableSqliteBackupAndSync: false
  applicationCredentials:

twilio:
  enabled: false
  accountSid:
  authToken:
  messagingServiceSid:
  from:

profile:
  name: Dev Walker
  email: dev@example.com
  phone: "+15550000000"

contacts:
  - name: Buddy
    phone: "+15550000001"
    email: buddy@example.com
`
