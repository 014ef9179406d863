// Command campusauthd serves the campus authentication API.
//
// Configuration is read from the YAML file named by -config (default
// configs/campusauth.yaml) and overridden by environment variables such as
// JWT_SIGNING_KEY, DB_URL and REDIS_URL.
package main

import (
	"context"
	"flag"
	"log"

	"github.com/MrEthical07/campusauth/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "configs/campusauth.yaml", "path to the YAML config file")
	flag.Parse()

	ctx := context.Background()
	runtime, err := bootstrap.NewRuntime(ctx, *configPath)
	if err != nil {
		log.Fatalf("bootstrap runtime: %v", err)
	}
	if err := runtime.Run(ctx); err != nil {
		log.Fatalf("run: %v", err)
	}
}
