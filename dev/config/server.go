package config

// SERVER_YML is written to dev/config/server.yml the first time the server
// runs with --dev and no config exists.
const SERVER_YML = `
villagevault:
  # Path to an RSA private key (PEM). Left empty a new key is generated on every start.
  privateKeyPem:
  tokenTTL: 168h
  frontendURL: "http://localhost:3000"
  seedDemoData: true
  cron:
    timeZone: "Asia/Kolkata"
  listener:
    port: 5000
  otp:
    length: 6
    ttl: 5m
    maxAttempts: 5
  delivery:
    smsDelay: 1s
    missedCallDelay: 2s
    excludeSender: false
  workers:
    concurrency: 2

database:
  driver: sqlite
  sqlite:
    passPhrase: passphrase
  postgres:
    dsn:

# Leave addr empty to keep OTPs in memory
redis:
  addr:
  password:
  db: 0

# Without credentials SMS & missed calls are only logged
twilio:
  accountSid:
  authToken:
  messagingServiceSid:
  fromNumber:

google:
  applicationCredentials:
  storage:
    bucket: "villagevault"
    prefix: "villagevault-dev"
    sqliteBackupSchedule: "*/30 * * * *"
`
