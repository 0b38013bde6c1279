package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"cogtask/internal/sequence"
	"cogtask/internal/session"
)

func cmdGenerate(args []string) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	n := fs.Int("n", 2, "back-reference distance")
	total := fs.Int("trials", 0, "total trials (default 20+n)")
	both := fs.Int("both", 2, "slots that are targets in both modalities")
	visual := fs.Int("visual", 5, "visual-only targets")
	audio := fs.Int("audio", 5, "audio-only targets")
	poolV := fs.Int("pool-visual", 9, "visual stimulus pool size")
	poolA := fs.Int("pool-audio", 12, "audio stimulus pool size")
	seed := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	asJSON := fs.Bool("json", false, "print JSON instead of a table")
	modeName := fs.String("mode", "dual", "dual, visual (colour) or audio")
	fs.Parse(args)

	mode, err := session.ParseMode(*modeName)
	if err != nil {
		fatalf("%v", err)
	}
	if *total == 0 {
		*total = 20 + *n
	}
	cfg := sequence.Config{
		N:           *n,
		TotalTrials: *total,
		Targets:     sequence.Quota{Both: *both, VisualOnly: *visual, AudioOnly: *audio},
		Pool:        sequence.PoolSize{Visual: *poolV, Audio: *poolA},
	}

	src := sequence.NewSource(*seed)
	var seq sequence.Sequence
	switch mode {
	case session.ModeVisual:
		cfg = sequence.SingleConfig(sequence.StreamVisual, *n, *total, *both+*visual, *poolV)
		seq, err = sequence.Single(sequence.StreamVisual, *n, *total, *both+*visual, *poolV, src)
	case session.ModeAudio:
		cfg = sequence.SingleConfig(sequence.StreamAudio, *n, *total, *both+*audio, *poolA)
		seq, err = sequence.Single(sequence.StreamAudio, *n, *total, *both+*audio, *poolA, src)
	default:
		seq, err = sequence.Generate(cfg, src)
	}
	if err != nil {
		var ce *sequence.ConfigError
		if errors.As(err, &ce) {
			fatalf("%s: %v", ce.Kind, err)
		}
		fatalf("%v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(seq)
		return
	}

	fmt.Printf("%s  seed=%d\n", cfg, *seed)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	tw.AppendHeader(table.Row{"#", "Kind", "Visual", "Audio", "V target", "A target"})
	for _, s := range seq {
		tw.AppendRow(table.Row{s.Index, s.Kind(), s.VisualStimulusID, s.AudioStimulusID,
			yesNo(s.VisualIsTarget), yesNo(s.AudioIsTarget)})
	}
	c := seq.Counts()
	tw.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("both %d", c.Both),
		fmt.Sprintf("v %d / a %d", c.VisualOnly, c.AudioOnly)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignRight},
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
	})
	tw.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return ""
}

func cmdConfig() {
	cfg := loadConfig()
	if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
		fatalf("encode config: %v", err)
	}
}
