/*
Package config loads PalletScan configuration from the environment
with an optional YAML overlay.

Precedence is defaults, then the file named by PALLETSCAN_CONFIG, then
environment variables. The same Config drives both the API and the
worker binaries; each reads only the fields it needs.
*/
package config
