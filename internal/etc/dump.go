// Package etc holds small operational helpers that have no better home.
package etc

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hashicorp/go-metrics"
)

// DumpCounters writes the aggregated counters of an in-memory metrics
// sink in a stable, sorted form. oplogctl uses it for the decode
// summary; the signal-driven dump shipped with go-metrics does not fit
// a one-shot CLI.
func DumpCounters(inm *metrics.InmemSink, w io.Writer) error {
	totals := make(map[string]float64)
	for _, intv := range inm.Data() {
		intv.RLock()
		for _, agg := range intv.Counters {
			totals[flattenLabels(agg.Name, agg.Labels)] += agg.Sum
		}
		intv.RUnlock()
	}

	names := make([]string, 0, len(totals))
	for name := range totals {
		names = append(names, name)
	}
	sort.Strings(names)

	buf := bytes.NewBuffer(nil)
	for _, name := range names {
		fmt.Fprintf(buf, "%s: %.0f\n", name, totals[name])
	}

	_, err := w.Write(buf.Bytes())
	return err
}

// flattenLabels joins a metric name with its labels, with spaces and
// colons replaced so the result stays a single token.
func flattenLabels(name string, labels []metrics.Label) string {
	buf := bytes.NewBufferString(name)
	replacer := strings.NewReplacer(" ", "_", ":", "_")

	for _, label := range labels {
		replacer.WriteString(buf, ";"+label.Name+"="+label.Value)
	}

	return buf.String()
}
