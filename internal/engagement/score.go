package engagement

// Attendance classification thresholds for finalization: a participant must
// stay for 75% of the session to be PRESENT, half that to be LATE.
const attendanceThresholdRatio = 0.75

// Score computes the 0-100 engagement score for a participant against the
// session duration in minutes. Weighted components, capped at 100.
func Score(p Participant, sessionMinutes float64) int {
	score := 0

	switch p.CameraState {
	case MediaOn:
		score += 30
	case MediaPartial:
		score += 15
	}

	switch p.MicState {
	case MediaOn:
		score += 20
	case MediaPartial:
		score += 10
	}

	switch {
	case p.TabSwitches <= 5:
		score += 20
	case p.TabSwitches <= 10:
		score += 10
	}

	switch {
	case p.ChatMessages >= 5:
		score += 15
	case p.ChatMessages >= 2:
		score += 10
	case p.ChatMessages >= 1:
		score += 5
	}

	if sessionMinutes > 0 {
		ratio := p.AttentionMinutes / sessionMinutes
		switch {
		case ratio >= 0.9:
			score += 15
		case ratio >= 0.7:
			score += 10
		case ratio >= 0.5:
			score += 5
		}
	}

	if score > 100 {
		score = 100
	}
	return score
}

// Classify maps a participant's attended minutes to an attendance status
// given the full session duration in minutes.
func Classify(attendedMinutes, sessionMinutes float64) string {
	threshold := sessionMinutes * attendanceThresholdRatio
	switch {
	case attendedMinutes >= threshold:
		return "PRESENT"
	case attendedMinutes >= threshold/2:
		return "LATE"
	default:
		return "ABSENT"
	}
}
