package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

func RenderMarkdown(d Daily, title string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s - %s\n\n", title, d.Date.Format("02/01/2006"))

	if len(d.Rows) == 0 {
		b.WriteString("Nenhum apontamento registrado.\n")
	} else {
		b.WriteString("| Linha | Turno | Produzido | Defeituoso | Defeitos % | Parado (min) | Eficiencia % | Status |\n")
		b.WriteString("|---|---|---:|---:|---:|---:|---:|---|\n")
		for _, r := range d.Rows {
			efficiency := "-"
			if r.CoveredMinutes > 0 {
				efficiency = r.EfficiencyPct.StringFixed(2)
			}
			fmt.Fprintf(&b, "| %s | %s | %d | %d | %s | %d | %s | %s |\n",
				escapeCell(r.LineName), r.ShiftLabel, r.Produced, r.Defective,
				r.DefectRatePct.StringFixed(2), r.DowntimeMinutes, efficiency, status(r.Finalized))
		}
		fmt.Fprintf(&b, "| **Total** | | **%d** | **%d** | **%s** | **%d** | | |\n",
			d.Totals.Produced, d.Totals.Defective, d.DefectRatePct.StringFixed(2), d.Totals.DowntimeMinutes)
	}

	if len(d.Downtime) > 0 {
		b.WriteString("\n## Paradas por categoria\n\n")
		b.WriteString("| Categoria | Minutos | Eventos | % |\n")
		b.WriteString("|---|---:|---:|---:|\n")
		for _, c := range d.Downtime {
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", escapeCell(c.Category), c.Minutes, c.Events, c.SharePct.StringFixed(1))
		}
	}

	if len(d.StaleOpen) > 0 {
		b.WriteString("\n## Apontamentos em aberto\n\n")
		for _, s := range d.StaleOpen {
			fmt.Fprintf(&b, "- %s, %s, turno %s (%d dias)\n",
				s.LineName, s.Date.Format("02/01/2006"), s.ShiftLabel, s.AgeDays)
		}
	}
	return b.String()
}

func status(finalized bool) string {
	if finalized {
		return "Finalizado"
	}
	return "Aberto"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// WriteReportFile writes the report as <name>_<YYYYMMDD>.md under outputDir
// and returns its path.
func WriteReportFile(content, outputDir string, reportDate time.Time, name string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("%s_%s.md", sanitizeFilename(name), reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}
