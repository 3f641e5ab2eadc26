package main

import (
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog"

	"marineops-bridge/internal/config"
	"marineops-bridge/internal/telemetry"
)

const defaultGreptimePort = 4001

// newEpisodeWriter builds the episode sink from the greptime section and an
// optional JSONL log file. It returns a nil writer when neither is set.
func newEpisodeWriter(c config.Greptime, logFile string, log zerolog.Logger) (telemetry.EpisodeWriter, func(), error) {
	cleanup := func() {}
	var writers []telemetry.EpisodeWriter

	if c.Endpoint != "" {
		host, port, err := splitEndpoint(c.Endpoint)
		if err != nil {
			return nil, nil, err
		}
		if c.Table != "" {
			telemetry.EpisodeTableName = c.Table
		}
		gw, err := telemetry.NewGreptimeDBWriter(host, port, c.Database, log)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("endpoint", c.Endpoint).Str("table", telemetry.EpisodeTableName).Msg("writing episodes to greptimedb")
		writers = append(writers, gw)
	}

	if logFile != "" {
		fw, err := telemetry.NewFileWriter(logFile)
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() { _ = fw.Close() }
		writers = append(writers, fw)
	}

	switch len(writers) {
	case 0:
		return nil, cleanup, nil
	case 1:
		return writers[0], cleanup, nil
	default:
		return telemetry.NewMultiWriter(writers...), cleanup, nil
	}
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		// bare host
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid greptimedb port %q", portStr)
	}
	return host, port, nil
}
