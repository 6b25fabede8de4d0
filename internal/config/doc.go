// Package config provides configuration parsing for DragonDrop.
//
// The configuration is stored in dragondrop.json. Every key can be
// overridden from the environment with the DRAGONDROP_ prefix, dots
// replaced by underscores (DRAGONDROP_SERVER_PORT, DRAGONDROP_STORAGE_DRIVER).
// List values are comma separated.
//
// # Configuration File Structure
//
//	{
//	  "server": {
//	    "host": "localhost",
//	    "port": 8780,
//	    "uploadPath": "/upload",
//	    "manualPath": "/upload/manual",
//	    "relayPath": "/ws",
//	    "metricsPath": "/metrics",
//	    "cleanupInterval": "5m"
//	  },
//	  "storage": {
//	    "driver": "disk",
//	    "dir": ".dragondrop/uploads"
//	  },
//	  "upload": {
//	    "maxFileSize": 10485760,
//	    "allowedTypes": ["image/png", "image/jpeg"],
//	    "tempExpiry": "1h"
//	  },
//	  "widget": {
//	    "id": "avatar",
//	    "accepts": ["image/png", "image/jpeg"],
//	    "url": "http://localhost:8780/upload",
//	    "manualUrl": "http://localhost:8780/upload/manual"
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
//	fmt.Println("Listening on", cfg.Address())
package config
