package engagement

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScoreFullyEngagedParticipant(t *testing.T) {
	p := Participant{
		CameraState:      MediaOn,
		MicState:         MediaOn,
		TabSwitches:      3,
		ChatMessages:     6,
		AttentionMinutes: 57, // ratio 0.95 over a 60 minute session
	}
	require.Equal(t, 100, Score(p, 60))
}

func TestScoreComponents(t *testing.T) {
	cases := []struct {
		name    string
		p       Participant
		minutes float64
		want    int
	}{
		{"camera partial only", Participant{CameraState: MediaPartial, TabSwitches: 20}, 60, 15},
		{"mic partial only", Participant{CameraState: MediaOff, MicState: MediaPartial, TabSwitches: 20}, 60, 10},
		{"few tab switches", Participant{TabSwitches: 5}, 60, 20},
		{"some tab switches", Participant{TabSwitches: 10}, 60, 10},
		{"many tab switches", Participant{TabSwitches: 11}, 60, 0},
		{"one chat message", Participant{TabSwitches: 20, ChatMessages: 1}, 60, 5},
		{"two chat messages", Participant{TabSwitches: 20, ChatMessages: 2}, 60, 10},
		{"five chat messages", Participant{TabSwitches: 20, ChatMessages: 5}, 60, 15},
		{"attention 0.7", Participant{TabSwitches: 20, AttentionMinutes: 42}, 60, 10},
		{"attention 0.5", Participant{TabSwitches: 20, AttentionMinutes: 30}, 60, 5},
		{"attention below half", Participant{TabSwitches: 20, AttentionMinutes: 20}, 60, 0},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, Score(tc.p, tc.minutes), tc.name)
	}
}

func TestScoreZeroSessionMinutesSkipsAttention(t *testing.T) {
	p := Participant{TabSwitches: 20, AttentionMinutes: 30}
	require.Equal(t, 0, Score(p, 0))
}

func TestClassify(t *testing.T) {
	// 60 minute session: threshold 45, late cutoff 22.5.
	require.Equal(t, "PRESENT", Classify(60, 60))
	require.Equal(t, "PRESENT", Classify(45, 60))
	require.Equal(t, "LATE", Classify(44.9, 60))
	require.Equal(t, "LATE", Classify(22.5, 60))
	require.Equal(t, "ABSENT", Classify(22.4, 60))
	require.Equal(t, "ABSENT", Classify(0, 60))
}
