// Package config provides configuration parsing for observ tools.
//
// The configuration is stored in observ.json, or observ.yaml when no JSON
// file exists. This package handles loading, saving, and validating
// configuration.
//
// # Configuration File Structure
//
//	{
//	  "budget": {
//	    "maxRounds": 100,
//	    "maxRunsPerFlush": 0
//	  },
//	  "debug": {
//	    "logFlushes": true,
//	    "logLevel": "debug"
//	  },
//	  "inspector": {
//	    "address": ":7070",
//	    "capacity": 256
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "namespace": "observ"
//	  },
//	  "archive": {
//	    "bucket": "my-traces",
//	    "prefix": "traces",
//	    "region": "eu-west-1"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	rt := observ.NewRuntime(observ.WithBudget(cfg.RuntimeBudget()))
package config
