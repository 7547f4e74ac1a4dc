package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	generatordomain "github.com/harvardinformatics/ifxbilling-sub000/internal/generator/domain"
	"github.com/harvardinformatics/ifxbilling-sub000/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCalculateFlags(t *testing.T) {
	var stderr bytes.Buffer
	opts, err := parseCalculateFlags([]string{
		"--year", "2024", "--month", "3",
		"--facility", "Helium Recovery Service",
		"--org", "Kitchen Lab,Nobel Lab",
		"--product", "Helium Dewar",
		"--recalculate", "--verbose",
	}, &stderr)
	require.NoError(t, err)
	assert.Equal(t, 2024, opts.Year)
	assert.Equal(t, 3, opts.Month)
	assert.Equal(t, "Helium Recovery Service", opts.Facility)
	assert.Equal(t, []string{"Kitchen Lab", "Nobel Lab"}, opts.Organizations)
	assert.Equal(t, []string{"Helium Dewar"}, opts.Products)
	assert.True(t, opts.Recalculate)
	assert.True(t, opts.Verbose)

	_, err = parseCalculateFlags([]string{"--month", "13"}, &stderr)
	require.Error(t, err)

	_, err = parseCalculateFlags([]string{"--bogus"}, &stderr)
	require.Error(t, err)
}

func TestPeriodStartDefaultsToCurrentMonth(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC on April 1 is still March 31 in New York.
	now := time.Date(2024, 4, 1, 2, 0, 0, 0, time.UTC)

	start := calculateOptions{}.periodStart(now, loc)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, loc), start)

	start = calculateOptions{Year: 2023, Month: 11}.periodStart(now, loc)
	assert.Equal(t, time.Date(2023, 11, 1, 0, 0, 0, 0, loc), start)
}

func TestPrintBatchResult(t *testing.T) {
	res := &generatordomain.BatchResult{
		Facility: "Helium Recovery Service",
		Start:    time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Organizations: map[string]*generatordomain.OrganizationResult{
			"Nobel Lab":   {Successes: 1, Charged: 12345},
			"Kitchen Lab": {Successes: 2, Skipped: 1, Errors: []string{"Unable to create billing record for usage 7: boom"}},
		},
		FinalizationErrors: []string{"Finalization failed"},
	}

	var out bytes.Buffer
	printBatchResult(&out, res)
	text := out.String()

	assert.Contains(t, text, "Helium Recovery Service 2024-03: 3 billing records created, 1 skipped, 1 errors")
	assert.Contains(t, text, "Nobel Lab: 1 created ($123.45)")
	assert.Contains(t, text, "Unable to create billing record for usage 7: boom")
	assert.Contains(t, text, "Finalization failed")
	assert.Less(t, bytes.Index(out.Bytes(), []byte("Kitchen Lab")), bytes.Index(out.Bytes(), []byte("Nobel Lab")))
}

type recordingPusher struct {
	gathered []*dto.MetricFamily
	err      error
}

func (p *recordingPusher) Push(_ context.Context, gatherer prometheus.Gatherer) error {
	families, err := gatherer.Gather()
	if err != nil {
		return err
	}
	p.gathered = families
	return p.err
}

func TestPushBatchMetrics(t *testing.T) {
	registry := prometheus.NewRegistry()
	batch := metrics.NewBatchMetrics(registry, metrics.Config{ServiceName: "ifxbilling"})
	batch.IncUsage("Helium Recovery Service", metrics.OutcomeSuccess, nil)

	var stderr bytes.Buffer
	pusher := &recordingPusher{}
	pushBatchMetrics(context.Background(), &stderr, pusher, registry)
	assert.Empty(t, stderr.String())
	names := make([]string, 0, len(pusher.gathered))
	for _, family := range pusher.gathered {
		names = append(names, family.GetName())
	}
	assert.Contains(t, names, "ifxbilling_batch_usage_total")

	pusher.err = errors.New("gateway down")
	pushBatchMetrics(context.Background(), &stderr, pusher, registry)
	assert.Contains(t, stderr.String(), "push batch metrics: gateway down")

	// Unconfigured push is a no-op.
	pushBatchMetrics(context.Background(), &stderr, nil, registry)
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, run([]string{"explode"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), `unknown command "explode"`)

	assert.Equal(t, 2, run(nil, &stdout, &stderr))
	assert.Equal(t, 0, run([]string{"help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "calculate-billing-records")
}
