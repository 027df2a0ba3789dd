package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/vetnav/resource-finder/pkg/client"
	"github.com/vetnav/resource-finder/pkg/common"
	"github.com/vetnav/resource-finder/pkg/server"
	"github.com/vetnav/resource-finder/pkg/tracking"
)

var enableProfiling = flag.Bool("profiling", false, "enable profiling endpoints")

var (
	listenAddress = envOr("LISTEN_ADDR", ":8080")
	catalogUrl    = os.Getenv("CATALOG_URL")
	geocoderUrl   = os.Getenv("GEOCODER_URL")
	rabbitUrl     = os.Getenv("RABBIT_URL")
	redisUrl      = os.Getenv("REDIS_URL")
	redisPassword = os.Getenv("REDIS_PASSWORD")
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	flag.Parse()

	if catalogUrl == "" {
		log.Fatalf("No catalog url provided")
	}
	if geocoderUrl == "" {
		geocoderUrl = catalogUrl
	}

	var trk tracking.Tracking = tracking.Noop{}
	var rabbit *tracking.RabbitTracking
	if rabbitUrl != "" {
		var err error
		rabbit, err = tracking.NewRabbitTracking(rabbitUrl)
		if err != nil {
			log.Printf("tracking disabled, broker unreachable: %v", err)
		} else {
			trk = rabbit
		}
	}

	catalog := client.NewCatalog(catalogUrl)
	ws := &server.WebServer{
		Catalog:   catalog,
		TagSource: catalog,
		Geocoder:  client.NewZipGeocoder(geocoderUrl),
		Feedback:  catalog,
		Tracking:  trk,
	}
	if redisUrl != "" {
		ws.Redis = redis.NewClient(&redis.Options{
			Addr:     redisUrl,
			Password: redisPassword,
		})
		log.Printf("shared tag cache enabled, url: %s", redisUrl)
	}

	mux := http.NewServeMux()
	mux.Handle("/api/", ws.Handler())
	mux.Handle("/metrics", promhttp.Handler())
	if *enableProfiling {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	timeouts := common.LoadTimeoutConfig(common.TimeoutConfig{
		ReadHeader: 5 * time.Second,
		Read:       30 * time.Second,
		Write:      30 * time.Second,
		Idle:       120 * time.Second,
		Shutdown:   15 * time.Second,
		Hook:       5 * time.Second,
	})
	srv := common.NewServerWithTimeouts(&http.Server{Addr: listenAddress, Handler: mux}, timeouts)

	common.RunServerWithShutdown(srv, "resource finder", timeouts.Shutdown, timeouts.Hook,
		func(ctx context.Context) error {
			ws.Stop()
			return nil
		},
		func(ctx context.Context) error {
			if rabbit != nil {
				return rabbit.Close()
			}
			return nil
		},
	)
}
