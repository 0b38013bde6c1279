package trial

import "math"

// Tally accumulates the outcomes of one modality.
type Tally struct {
	Hits              int
	Misses            int
	FalseAlarms       int
	CorrectRejections int

	hitRTs []float64
}

// Add records one outcome. rt is the reaction time in seconds and only
// counts towards the reaction time summary for hits.
func (t *Tally) Add(o Outcome, rt float64) {
	switch o {
	case Hit:
		t.Hits++
		if rt >= 0 {
			t.hitRTs = append(t.hitRTs, rt)
		}
	case Miss:
		t.Misses++
	case FalseAlarm:
		t.FalseAlarms++
	case CorrectRejection:
		t.CorrectRejections++
	}
}

// Targets is the number of target trials seen.
func (t *Tally) Targets() int {
	return t.Hits + t.Misses
}

// Trials is the number of trials seen.
func (t *Tally) Trials() int {
	return t.Hits + t.Misses + t.FalseAlarms + t.CorrectRejections
}

// Accuracy is hits over targets, 0 when there were no targets.
func (t *Tally) Accuracy() float64 {
	if t.Targets() == 0 {
		return 0
	}
	return float64(t.Hits) / float64(t.Targets())
}

// FalseAlarmRate is false alarms over non-target trials.
func (t *Tally) FalseAlarmRate() float64 {
	nonTargets := t.FalseAlarms + t.CorrectRejections
	if nonTargets == 0 {
		return 0
	}
	return float64(t.FalseAlarms) / float64(nonTargets)
}

// MeanRT is the mean reaction time over hits.
func (t *Tally) MeanRT() float64 {
	if len(t.hitRTs) == 0 {
		return 0
	}
	var sum float64
	for _, rt := range t.hitRTs {
		sum += rt
	}
	return sum / float64(len(t.hitRTs))
}

// RTStdDev is the population standard deviation of hit reaction times.
func (t *Tally) RTStdDev() float64 {
	if len(t.hitRTs) <= 1 {
		return 0
	}
	mean := t.MeanRT()
	var ss float64
	for _, rt := range t.hitRTs {
		d := rt - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(t.hitRTs)))
}

// Stats is the exported summary of a Tally.
type Stats struct {
	Hits              int     `json:"hits"`
	Misses            int     `json:"misses"`
	FalseAlarms       int     `json:"false_alarms"`
	CorrectRejections int     `json:"correct_rejections"`
	Accuracy          float64 `json:"accuracy"`
	FalseAlarmRate    float64 `json:"false_alarm_rate"`
	MeanRT            float64 `json:"mean_rt"`
	RTStdDev          float64 `json:"rt_stddev"`
}

// Stats snapshots the tally.
func (t *Tally) Stats() Stats {
	return Stats{
		Hits:              t.Hits,
		Misses:            t.Misses,
		FalseAlarms:       t.FalseAlarms,
		CorrectRejections: t.CorrectRejections,
		Accuracy:          t.Accuracy(),
		FalseAlarmRate:    t.FalseAlarmRate(),
		MeanRT:            t.MeanRT(),
		RTStdDev:          t.RTStdDev(),
	}
}

// Summarize tallies results per modality.
func Summarize(results []Result) (visual, audio Tally) {
	for _, r := range results {
		visual.Add(r.VisualOutcome, r.VisualRT)
		audio.Add(r.AudioOutcome, r.AudioRT)
	}
	return visual, audio
}

// ValenceCounts counts negative and neutral presentations of modality m.
func ValenceCounts(results []Result, m Modality) (negative, neutral int) {
	for _, r := range results {
		v := r.VisualValence
		if m == Audio {
			v = r.AudioValence
		}
		switch v {
		case Negative:
			negative++
		case Neutral:
			neutral++
		}
	}
	return negative, neutral
}
