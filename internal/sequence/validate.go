package sequence

import "fmt"

// Validate checks seq against every invariant of cfg: length, indices,
// pool bounds, no target before slot N, targets equal to their
// back-reference, no accidental match among non-targets (pool > 1) and
// exact quotas.
func Validate(seq Sequence, cfg Config) error {
	if len(seq) != cfg.TotalTrials {
		return fmt.Errorf("sequence has %d slots, want %d", len(seq), cfg.TotalTrials)
	}

	for i, s := range seq {
		if s.Index != i {
			return fmt.Errorf("slot %d has index %d", i, s.Index)
		}
		if err := checkRange("visual", i, s.VisualStimulusID, cfg.Pool.Visual); err != nil {
			return err
		}
		if err := checkRange("audio", i, s.AudioStimulusID, cfg.Pool.Audio); err != nil {
			return err
		}
		if i < cfg.N {
			if s.VisualIsTarget || s.AudioIsTarget {
				return fmt.Errorf("slot %d is a target before n=%d", i, cfg.N)
			}
			continue
		}

		back := seq[i-cfg.N]
		if err := checkBackReference("visual", i, i-cfg.N, s.VisualIsTarget, s.VisualStimulusID, back.VisualStimulusID, cfg.Pool.Visual); err != nil {
			return err
		}
		if err := checkBackReference("audio", i, i-cfg.N, s.AudioIsTarget, s.AudioStimulusID, back.AudioStimulusID, cfg.Pool.Audio); err != nil {
			return err
		}
	}

	if got := seq.Counts(); got != cfg.Targets {
		return fmt.Errorf("quota mismatch: got both=%d visual=%d audio=%d, want both=%d visual=%d audio=%d",
			got.Both, got.VisualOnly, got.AudioOnly, cfg.Targets.Both, cfg.Targets.VisualOnly, cfg.Targets.AudioOnly)
	}
	return nil
}

func checkRange(modality string, i, id, pool int) error {
	if pool == 0 {
		if id != 0 {
			return fmt.Errorf("slot %d: %s id %d set on disabled modality", i, modality, id)
		}
		return nil
	}
	if id < 0 || id >= pool {
		return fmt.Errorf("slot %d: %s id %d outside pool [0,%d)", i, modality, id, pool)
	}
	return nil
}

func checkBackReference(modality string, i, j int, isTarget bool, id, back, pool int) error {
	if isTarget {
		if id != back {
			return fmt.Errorf("slot %d: %s target id %d does not repeat %d", i, modality, id, back)
		}
		return nil
	}
	if pool > 1 && id == back {
		return fmt.Errorf("slot %d: %s non-target id %d accidentally repeats slot %d", i, modality, id, j)
	}
	if pool == 1 {
		return fmt.Errorf("slot %d: %s non-target cannot differ with a single-stimulus pool", i, modality)
	}
	return nil
}
