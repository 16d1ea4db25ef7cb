// Package config provides the Configuration a server run is started with and
// loaders for reading it from YAML or JSON files.
//
// A Configuration holds the hostname and port to bind, the set of mock
// requests to serve and, optionally, the upstream to proxy to in record mode.
//
// File-based Configuration:
//
//	cfg, err := config.LoadFromFile("mockdeck.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// The YAML format:
//
//	hostname: 127.0.0.1
//	port: 8080
//	include:
//	  - mocks/**/*.yaml
//	requests:
//	  - method: GET
//	    path: /api/users
//	    response:
//	      status: 200
//	      headers:
//	        - name: Cache-Control
//	          value: no-store
//	      body:
//	        contentType: json
//	        file: responses/users.json
//
// Relative body files and include patterns are resolved against the directory
// of the file that declares them. ${VAR} and ${VAR:-default} references are
// expanded from the environment before parsing. Included files hold a plain
// list of requests.
package config
