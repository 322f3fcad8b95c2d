package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/civisync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   inbound bearer-token HMAC secret
//	-u string   CiviCRM instance URL
//	-k string   CiviCRM site key
//	-i string   CiviCRM API key
//	-b int      batch size (payments per push run)
//	-r int      retry threshold (attempts before marking failed)
//	-m string   error notice recipients, comma separated
//	-p string   invoice reference prefix
//	-t int      outbound request timeout, seconds
//	-n int      outbound sync interval, seconds
//
// Notes:
//   - The function first filters os.Args to only the flags it recognizes
//     using flagx.FilterArgs, avoiding collisions with other components.
//   - Duration flags are accepted as integers in seconds and then converted
//     to time.Duration values.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-u", "-k", "-i", "-b", "-r", "-m", "-p", "-t", "-n"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")
	fs.StringVar(&config.CRMInstanceURL, "u", config.CRMInstanceURL, "CiviCRM instance URL")
	fs.StringVar(&config.CRMSiteKey, "k", config.CRMSiteKey, "CiviCRM site key")
	fs.StringVar(&config.CRMAPIKey, "i", config.CRMAPIKey, "CiviCRM API key")
	fs.IntVar(&config.BatchSize, "b", config.BatchSize, "payments per push run")
	fs.IntVar(&config.RetryThreshold, "r", config.RetryThreshold, "retry threshold")
	fs.StringVar(&config.ErrorNoticeRecipients, "m", config.ErrorNoticeRecipients, "error notice recipients (comma separated)")
	fs.StringVar(&config.InvoiceRefPrefix, "p", config.InvoiceRefPrefix, "invoice reference prefix")

	requestTimeout := fs.Int("t", int(config.RequestTimeout.Seconds()), "request_timeout (in seconds)")
	syncInterval := fs.Int("n", int(config.SyncInterval.Seconds()), "sync_interval (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.RequestTimeout = time.Duration(*requestTimeout) * time.Second
	config.SyncInterval = time.Duration(*syncInterval) * time.Second
}
