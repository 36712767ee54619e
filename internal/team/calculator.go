package team

import "math"

// GlowBreakdown explains how a node's effective glow was assembled.
type GlowBreakdown struct {
	Base             float64
	ParentRizz       float64
	GrandparentRizz  float64
	GreatGrandRizz   float64
	VerticalTotal    float64
	ParentMatch      bool
	MatchingSiblings int
	MatchingChildren int
	SiblingBonus     float64
	ChildBonus       float64
	HorizontalTotal  float64
	Total            float64
}

// MemberContribution is one node's fully resolved score share.
type MemberContribution struct {
	CreatureID      int64
	Name            string
	PositionType    string
	Level           int
	BodyType        string
	EffectiveGlow   float64
	Glow            GlowBreakdown
	BaseTraits      float64 // glow-multiplied trait total, before the specialist bonus
	SpecialistBonus float64
	RoleMultiplier  float64
	Contribution    float64
}

// Breakdown is the aggregate score decomposition for display.
type Breakdown struct {
	BaseScore float64
	// SynergyBonus rewards each filled position.
	SynergyBonus float64
	// AffinityDiversityPct is the diversity multiplier as a percentage.
	AffinityDiversityPct float64
	TierBonus            float64
	TierCounts           map[int]int
}

// Result is the full output of a scoring pass.
type Result struct {
	TotalScore             float64
	Breakdown              Breakdown
	Members                []MemberContribution
	LevelContributions     map[int]float64
	NumPositions           int
	NumAffinityConnections int
}

// zeroResult is what incomplete teams score. Callers probe speculative
// team layouts, so a missing architect is not an error.
func zeroResult() Result {
	return Result{
		Breakdown:          Breakdown{TierCounts: map[int]int{1: 0, 2: 0, 3: 0, 4: 0}},
		Members:            []MemberContribution{},
		LevelContributions: map[int]float64{1: 0, 2: 0, 3: 0, 4: 0},
	}
}

// CalculateTeamScore scores a team tree. Pure and deterministic; the
// tree must not be mutated concurrently with a scoring pass.
func CalculateTeamScore(tree *Tree) Result {
	if tree == nil || tree.Architect == nil {
		return zeroResult()
	}

	result := zeroResult()
	walk(tree.Architect, func(node *Node) {
		member := memberContribution(node)
		result.Members = append(result.Members, member)
		result.LevelContributions[node.Level] += member.Contribution

		if member.Glow.ParentMatch {
			result.NumAffinityConnections++
		}
		result.NumAffinityConnections += member.Glow.MatchingSiblings
		result.NumAffinityConnections += member.Glow.MatchingChildren
	})

	var baseScore float64
	for _, m := range result.Members {
		baseScore += m.Contribution
	}
	result.NumPositions = len(result.Members)

	synergyBonus := baseScore * synergyRatePerPosition * float64(result.NumPositions)
	tierBonus, tierCounts := tierBonuses(tree.Architect)
	diversityMultiplier := affinityDiversityBonus(tree.Architect, result.NumAffinityConnections)

	total := (baseScore+synergyBonus)*(1+diversityMultiplier) + tierBonus

	result.TotalScore = round2(total)
	result.Breakdown = Breakdown{
		BaseScore:            round2(baseScore),
		SynergyBonus:         round2(synergyBonus),
		AffinityDiversityPct: round2(diversityMultiplier * 100),
		TierBonus:            tierBonus,
		TierCounts:           tierCounts,
	}
	return result
}

// EffectiveGlow resolves a node's glow: base plus the vertical Rizz
// cascade plus horizontal body-type affinity.
func EffectiveGlow(node *Node) (float64, GlowBreakdown) {
	breakdown := GlowBreakdown{Base: node.BaseGlow}

	if parent := node.Parent; parent != nil {
		breakdown.ParentRizz = parent.Rizz * parentRizzRate
		if grandparent := parent.Parent; grandparent != nil {
			breakdown.GrandparentRizz = grandparent.Rizz * grandparentRizzRate
			if great := grandparent.Parent; great != nil {
				breakdown.GreatGrandRizz = great.Rizz * greatGrandparentRizzRate
			}
		}
	}
	breakdown.VerticalTotal = breakdown.ParentRizz + breakdown.GrandparentRizz + breakdown.GreatGrandRizz

	if node.Parent != nil && bodyTypesMatch(node.BodyType, node.Parent.BodyType) {
		breakdown.ParentMatch = true
		breakdown.HorizontalTotal += parentMatchBonus
	}

	for _, sibling := range node.Siblings {
		if bodyTypesMatch(node.BodyType, sibling.BodyType) {
			breakdown.MatchingSiblings++
		}
	}
	if breakdown.MatchingSiblings > 0 {
		breakdown.SiblingBonus = math.Min(float64(breakdown.MatchingSiblings)*siblingMatchBonus, maxSiblingBonus)
		breakdown.HorizontalTotal += breakdown.SiblingBonus
	}

	for _, child := range node.Children {
		if bodyTypesMatch(node.BodyType, child.BodyType) {
			breakdown.MatchingChildren++
		}
	}
	if breakdown.MatchingChildren > 0 {
		breakdown.ChildBonus = math.Min(float64(breakdown.MatchingChildren)*childMatchBonus, maxChildBonus)
		breakdown.HorizontalTotal += breakdown.ChildBonus
	}

	breakdown.Total = breakdown.Base + breakdown.VerticalTotal + breakdown.HorizontalTotal
	return breakdown.Total, breakdown
}

// EffectiveTraits applies the glow multiplier to the node's trait total.
func EffectiveTraits(node *Node, effectiveGlow float64) float64 {
	var baseTraits float64
	for _, trait := range node.Traits {
		baseTraits += trait.Score
	}
	return baseTraits * (1 + effectiveGlow/100)
}

// SpecialistBonus adds each specialty trait a second time for
// specialist roles.
func SpecialistBonus(node *Node) float64 {
	specialties, ok := SpecialistTraits[node.PositionType]
	if !ok {
		return 0
	}
	var bonus float64
	for _, trait := range node.Traits {
		for _, name := range specialties {
			if trait.Name == name {
				bonus += trait.Score
			}
		}
	}
	return bonus
}

func memberContribution(node *Node) MemberContribution {
	effectiveGlow, glowBreakdown := EffectiveGlow(node)
	effectiveTraits := EffectiveTraits(node, effectiveGlow)
	specialistBonus := SpecialistBonus(node)

	multiplier, ok := RoleMultipliers[node.PositionType]
	if !ok {
		multiplier = 1.0
	}

	return MemberContribution{
		CreatureID:      node.CreatureID,
		Name:            node.Name,
		PositionType:    node.PositionType,
		Level:           node.Level,
		BodyType:        node.BodyType,
		EffectiveGlow:   effectiveGlow,
		Glow:            glowBreakdown,
		BaseTraits:      effectiveTraits,
		SpecialistBonus: specialistBonus,
		RoleMultiplier:  multiplier,
		Contribution:    (effectiveTraits + specialistBonus) * multiplier,
	}
}

// tierBonuses grants flat bonuses for filled tiers. The bonuses stack:
// a fully filled team earns all three.
func tierBonuses(root *Node) (float64, map[int]int) {
	counts := map[int]int{1: 0, 2: 0, 3: 0, 4: 0}
	walk(root, func(node *Node) {
		counts[node.Level]++
	})

	var bonus float64
	if counts[2] >= 1 {
		bonus += level2Bonus
	}
	if counts[3] >= 3 {
		bonus += level3Bonus
	}
	if counts[4] >= 3 {
		bonus += level4Bonus
	}
	return bonus, counts
}

// affinityDiversityBonus rewards body-type variety alongside affinity
// connections. Nodes without a body type count toward neither.
func affinityDiversityBonus(root *Node, affinityConnections int) float64 {
	bodyTypes := make(map[string]struct{})
	walk(root, func(node *Node) {
		if node.BodyType != "" {
			bodyTypes[node.BodyType] = struct{}{}
		}
	})

	diversity := math.Min(float64(len(bodyTypes))/diversityCap, 1) * diversityRate
	affinity := math.Min(float64(affinityConnections)/affinityCap, 1) * affinityRate
	return diversity + affinity
}

func walk(node *Node, visit func(*Node)) {
	visit(node)
	for _, child := range node.Children {
		walk(child, visit)
	}
}

func bodyTypesMatch(a, b string) bool {
	return a != "" && a == b
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
