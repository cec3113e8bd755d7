package config

import (
	"flag"
	"os"
	"time"

	"github.com/aformulationoftruth/server/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags. Only the flags listed here are consumed; everything else is left
// for other components (see flagx.FilterArgs). Duration flags are accepted
// as integer minutes.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-s", "-m", "-t", "-l", "-base", "-redis", "-u", "-p", "-b", "-g", "-e"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SessionSecret, "s", config.SessionSecret, "session signing secret")
	fs.StringVar(&config.MasterSecret, "m", config.MasterSecret, "field encryption master secret")

	sessionValidityDuration := fs.Int("t", int(config.SessionValidityDuration.Minutes()), "session_validity_duration (in minutes)")
	linkValidityDuration := fs.Int("l", int(config.LinkValidityDuration.Minutes()), "link_validity_duration (in minutes)")

	fs.StringVar(&config.BaseURL, "base", config.BaseURL, "canonical base URL for magic links")
	fs.StringVar(&config.RedisAddr, "redis", config.RedisAddr, "redis address for shared rate limiting")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionValidityDuration = time.Duration(*sessionValidityDuration) * time.Minute
	config.LinkValidityDuration = time.Duration(*linkValidityDuration) * time.Minute
}
