package telemetry

import (
	"context"
	"fmt"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"
	"github.com/rs/zerolog"
)

type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes episode rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client       greptimeClient
	episodeTable string
	timeout      time.Duration
	log          zerolog.Logger
}

// NewGreptimeDBWriter connects to host:port and writes into database.
func NewGreptimeDBWriter(host string, port int, database string, log zerolog.Logger) (*GreptimeDBWriter, error) {
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptimedb client: %w", err)
	}
	return &GreptimeDBWriter{
		client:       client,
		episodeTable: EpisodeTableName,
		timeout:      5 * time.Second,
		log:          log,
	}, nil
}

// WriteEpisode inserts a single episode row.
func (w *GreptimeDBWriter) WriteEpisode(row EpisodeRow) error {
	return w.WriteEpisodes([]EpisodeRow{row})
}

// WriteEpisodes inserts multiple episode rows.
func (w *GreptimeDBWriter) WriteEpisodes(rows []EpisodeRow) error {
	if len(rows) == 0 {
		return nil
	}
	tbl, err := episodeTable(w.episodeTable)
	if err != nil {
		return err
	}
	for _, r := range rows {
		if err := tbl.AddRow(
			r.SessionID,
			r.VehicleID,
			int64(r.Num),
			r.Success,
			r.DurationS,
			r.WillPause,
			r.EpisodeState,
			r.MOOSTime,
			r.Timestamp,
		); err != nil {
			return fmt.Errorf("add episode row: %w", err)
		}
	}

	timeout := w.timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	resp, err := w.client.Write(ctx, tbl)
	if err != nil {
		w.log.Warn().Err(err).Str("table", w.episodeTable).Msg("greptimedb write failed")
		return err
	}
	w.log.Debug().Str("table", w.episodeTable).Uint32("affected_rows", resp.GetAffectedRows().GetValue()).
		Msg("greptimedb wrote episodes")
	return nil
}

func episodeTable(name string) (*table.Table, error) {
	tbl, err := table.New(name)
	if err != nil {
		return nil, fmt.Errorf("greptimedb table %s: %w", name, err)
	}
	columns := []struct {
		add  func(string, types.ColumnType) error
		name string
		typ  types.ColumnType
	}{
		{tbl.AddTagColumn, "session_id", types.STRING},
		{tbl.AddTagColumn, "vehicle_id", types.STRING},
		{tbl.AddFieldColumn, "num", types.INT64},
		{tbl.AddFieldColumn, "success", types.BOOLEAN},
		{tbl.AddFieldColumn, "duration_s", types.FLOAT64},
		{tbl.AddFieldColumn, "will_pause", types.BOOLEAN},
		{tbl.AddFieldColumn, "episode_state", types.STRING},
		{tbl.AddFieldColumn, "moos_time", types.FLOAT64},
		{tbl.AddTimestampColumn, "ts", types.TIMESTAMP_MILLISECOND},
	}
	for _, c := range columns {
		if err := c.add(c.name, c.typ); err != nil {
			return nil, fmt.Errorf("greptimedb column %s: %w", c.name, err)
		}
	}
	return tbl, nil
}
