package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/civisync/internal/flagx"
	"github.com/dmitrijs2005/civisync/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30s" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. Fields are pointers so an absent key can be told
// apart from a zero value: only keys present in the file override the
// already-applied defaults.
type JsonConfig struct {
	EndpointAddrHTTP      *string         `json:"endpoint_addr_http"`
	DatabaseDSN           *string         `json:"database_dsn"`
	SecretKey             *string         `json:"secret_key"`
	CRMInstanceURL        *string         `json:"crm_instance_url"`
	CRMSiteKey            *string         `json:"crm_site_key"`
	CRMAPIKey             *string         `json:"crm_api_key"`
	BatchSize             *int            `json:"batch_size"`
	RetryThreshold        *int            `json:"retry_threshold"`
	ErrorNoticeRecipients *string         `json:"error_notice_recipients"`
	SMTPAddr              *string         `json:"smtp_addr"`
	SMTPFrom              *string         `json:"smtp_from"`
	InvoiceRefPrefix      *string         `json:"invoice_ref_prefix"`
	RequestTimeout        *timex.Duration `json:"request_timeout"`
	SyncInterval          *timex.Duration `json:"sync_interval"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; when
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != nil {
		config.EndpointAddrHTTP = *c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.SecretKey != nil {
		config.SecretKey = *c.SecretKey
	}
	if c.CRMInstanceURL != nil {
		config.CRMInstanceURL = *c.CRMInstanceURL
	}
	if c.CRMSiteKey != nil {
		config.CRMSiteKey = *c.CRMSiteKey
	}
	if c.CRMAPIKey != nil {
		config.CRMAPIKey = *c.CRMAPIKey
	}
	if c.BatchSize != nil {
		config.BatchSize = *c.BatchSize
	}
	if c.RetryThreshold != nil {
		config.RetryThreshold = *c.RetryThreshold
	}
	if c.ErrorNoticeRecipients != nil {
		config.ErrorNoticeRecipients = *c.ErrorNoticeRecipients
	}
	if c.SMTPAddr != nil {
		config.SMTPAddr = *c.SMTPAddr
	}
	if c.SMTPFrom != nil {
		config.SMTPFrom = *c.SMTPFrom
	}
	if c.InvoiceRefPrefix != nil {
		config.InvoiceRefPrefix = *c.InvoiceRefPrefix
	}
	if c.RequestTimeout != nil {
		config.RequestTimeout = time.Duration(c.RequestTimeout.Duration)
	}
	if c.SyncInterval != nil {
		config.SyncInterval = time.Duration(c.SyncInterval.Duration)
	}
}
