package game

// Phase is the current stage of the turn lifecycle.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseRoll
	PhaseDiscard
	PhaseAction
	PhaseEnded
)

var phaseNames = []string{
	"setup",
	"roll",
	"discard",
	"action",
	"ended",
}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// BonusTiePolicy controls who holds a longest-road or largest-army bonus
// when the leaders are exactly tied.
type BonusTiePolicy int

const (
	// TieNoBonus strips the bonus whenever no strict leader exists.
	TieNoBonus BonusTiePolicy = iota
	// TieHolderKeeps lets the current holder keep the bonus while it stays
	// among the tied leaders.
	TieHolderKeeps
)
