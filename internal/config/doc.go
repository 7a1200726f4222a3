// Package config loads the client configuration.
//
// The configuration is stored in agora.json, or agora.yaml, in the working
// directory or one of its parents. AGORA_BASE_URL, AGORA_TIMEOUT,
// AGORA_RATE_LIMIT and AGORA_LOG_LEVEL override the file.
//
// # Configuration File Structure
//
//	{
//	  "baseUrl": "https://api.example.com",
//	  "timeout": "10s",
//	  "rateLimit": {"rps": 5, "burst": 2},
//	  "pagination": {"likesBase": 1, "postsBase": 0, "pageSize": 20},
//	  "query": {"staleTime": "30s"},
//	  "metrics": {"namespace": "agora"},
//	  "log": {"level": "info"},
//	  "mock": {"addr": "localhost:8787"}
//	}
//
// # Usage
//
//	cfg, err := config.LoadOrDefault(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Backend:", cfg.BaseURL)
package config
