package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"gaintag/internal/report"
	"gaintag/internal/tags"
)

func newTableWriter() table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	return tw
}

func renderTrackTable(rep *report.Report) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"File", "Status", "Track Gain", "Album Gain", "Note"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	for _, track := range rep.Tracks {
		tw.AppendRow(table.Row{
			track.Path,
			string(track.Status),
			gainCell(track.TrackGain, track.HasTrackGain),
			gainCell(track.AlbumGain, track.HasAlbumGain),
			trackNote(track),
		})
	}
	return tw.Render()
}

func renderAlbumTable(rep *report.Report) string {
	tw := newTableWriter()
	tw.AppendHeader(table.Row{"Album", "Status", "Gain", "Tracks", "Excluded"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 5, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})

	for _, album := range rep.Albums {
		tw.AppendRow(table.Row{
			album.Key,
			string(album.Status),
			gainCell(album.AlbumGain, album.HasAlbumGain),
			album.TrackCount,
			album.Excluded,
		})
	}
	return tw.Render()
}

func gainCell(gain float64, known bool) string {
	if !known {
		return "-"
	}
	return tags.FormatGain(gain)
}

// trackNote condenses a track's flags and error into one cell.
func trackNote(track report.TrackOutcome) string {
	var notes []string
	if track.Error != "" {
		note := track.Error
		if track.ErrorKind != "" {
			note = track.ErrorKind + ": " + note
		}
		notes = append(notes, note)
	}
	if track.Silence {
		notes = append(notes, "silence")
	}
	if track.ClipAdjusted {
		notes = append(notes, "clip adjusted")
	}
	if track.ClipCheckSkipped {
		notes = append(notes, "no peak data")
	}
	if track.ExcludedFromAlbum {
		notes = append(notes, "excluded from album")
	}
	if track.CacheHit {
		notes = append(notes, "cached")
	}
	return strings.Join(notes, "; ")
}

func summarize(rep *report.Report) string {
	counts := rep.Counts()
	elapsed := rep.Finished.Sub(rep.Started).Round(10 * time.Millisecond)
	return fmt.Sprintf("%d tagged, %d measured, %d skipped, %d failed in %s",
		counts.Tagged, counts.Measured, counts.Skipped, counts.Failed, elapsed)
}
