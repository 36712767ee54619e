package team

// Position types within a team tree.
const (
	PositionArchitect = "architect"
	PositionPrime     = "prime"
	PositionAnalyst   = "analyst"
	PositionEngineer  = "engineer"
	PositionClerk     = "clerk"
	PositionAssistant = "assistant"
)

// RoleMultipliers scale each member's contribution by position.
var RoleMultipliers = map[string]float64{
	PositionArchitect: 1.5,
	PositionPrime:     1.3,
	PositionAnalyst:   1.2,
	PositionEngineer:  1.2,
	PositionClerk:     1.2,
	PositionAssistant: 1.0,
}

// SpecialistTraits lists the traits that count double for each
// specialist role.
var SpecialistTraits = map[string][]string{
	PositionAnalyst:  {"Creativity", "Wisdom"},
	PositionEngineer: {"Confidence", "Team Player"},
	PositionClerk:    {"Energy Level", "Empathy"},
}

// Body type affinity bonuses and caps.
const (
	parentMatchBonus  = 1.0
	siblingMatchBonus = 0.5
	childMatchBonus   = 0.3
	maxSiblingBonus   = 1.5
	maxChildBonus     = 1.0
)

// Rizz cascade rates from ancestors. The cascade stops silently at the
// first absent link.
const (
	parentRizzRate           = 0.10
	grandparentRizzRate      = 0.05
	greatGrandparentRizzRate = 0.02
)

// Aggregate bonus parameters.
const (
	synergyRatePerPosition = 0.15
	level2Bonus            = 150.0
	level3Bonus            = 300.0
	level4Bonus            = 450.0
	diversityCap           = 4.0
	diversityRate          = 0.10
	affinityCap            = 10.0
	affinityRate           = 0.05
)

// Trait is a named creature trait with its score.
type Trait struct {
	Name  string
	Score float64
}

// Node is one assigned team position. Parent, Children and Siblings
// describe the tree topology; they are caller-owned references the
// calculator only reads.
type Node struct {
	CreatureID   int64
	Name         string
	PositionType string
	Level        int
	BodyType     string
	BaseGlow     float64
	Rizz         float64
	Traits       []Trait

	Parent   *Node
	Children []*Node
	Siblings []*Node
}

// Tree is a team rooted at its architect.
type Tree struct {
	Architect *Node
}
