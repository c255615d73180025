// Command chaos stops Redis under a running gateway and reports how the
// global rate limiter behaves. With LIMITER_FAILURE_STRATEGY=fail_closed every
// request must get 503; with fail_open they must pass through.
//
// Run against a gateway started with REDIS_ADDR set:
//
//	go run ./tests/chaos -url http://localhost:8080 -strategy fail_closed
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
)

func status(client *http.Client, url string) (int, error) {
	resp, err := client.Get(url + "/health")
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}

func main() {
	base := flag.String("url", "http://localhost:8080", "gateway base URL")
	strategy := flag.String("strategy", "fail_closed", "strategy the gateway runs with")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	client := &http.Client{Timeout: 5 * time.Second}

	want := http.StatusServiceUnavailable
	if *strategy == "fail_open" {
		want = http.StatusOK
	}

	if err := exec.Command("docker-compose", "start", "redis").Run(); err != nil {
		log.Fatal().Err(err).Msg("start redis")
	}
	time.Sleep(2 * time.Second)

	code, err := status(client, *base)
	if err != nil {
		log.Fatal().Err(err).Msg("gateway unreachable")
	}
	log.Info().Int("status", code).Msg("redis up")

	log.Info().Msg("stopping redis")
	if err := exec.Command("docker-compose", "stop", "redis").Run(); err != nil {
		log.Fatal().Err(err).Msg("stop redis")
	}

	failed := 0
	for i := 0; i < 5; i++ {
		code, err := status(client, *base)
		if err != nil {
			log.Error().Err(err).Msg("request failed")
			failed++
			continue
		}
		if code != want {
			log.Error().Int("status", code).Int("want", want).Msg("unexpected status with redis down")
			failed++
		}
	}

	if err := exec.Command("docker-compose", "start", "redis").Run(); err != nil {
		log.Error().Err(err).Msg("restart redis")
	}

	if failed > 0 {
		fmt.Printf("FAIL: %d/5 requests did not follow %s\n", failed, *strategy)
		os.Exit(1)
	}
	fmt.Printf("PASS: limiter followed %s with redis down\n", *strategy)
}
