package generator

import (
	"strings"

	"github.com/chatlings/chatlings/internal/models"
	"github.com/chatlings/chatlings/internal/rng"
)

// ScriptMessage is one line of a generated transcript.
type ScriptMessage struct {
	CreatureID int64  `json:"creature_id"`
	Text       string `json:"message_text"`
	Order      int    `json:"message_order"`
	Sentiment  string `json:"sentiment"`
}

// MoodImpact buckets participants by how the conversation left them.
// This is the majority-matching model: a participant's mood depends on
// whether its opinion matched the conversation's overall tone, not on
// an accumulated score.
type MoodImpact struct {
	Happy   []int64 `json:"happy"`
	Neutral []int64 `json:"neutral"`
	Unhappy []int64 `json:"unhappy"`
}

// Script is a complete generated conversation.
type Script struct {
	Messages   []ScriptMessage `json:"messages"`
	MoodImpact MoodImpact      `json:"mood_impact"`
}

// Opinion is a participant's stance on the topic.
type Opinion struct {
	Sentiment string
	Strength  float64
}

// Generator produces whole conversation transcripts in one call. It is
// stateless apart from its injected template table and random source.
type Generator struct {
	templates Templates
	rand      rng.Source
}

func New(templates Templates, rand rng.Source) *Generator {
	return &Generator{templates: templates, rand: rand}
}

// Generate produces a full transcript and mood impact for the given
// participants and topic. Inactivity topics take the punitive branch.
func (g *Generator) Generate(participants []models.Participant, topic *models.Topic, isInactivityTopic bool) *Script {
	if isInactivityTopic {
		return g.generateInactivity(participants, topic)
	}

	messages := []ScriptMessage{}
	order := 0

	opinions := g.assignOpinions(participants, topic)

	// Opening: the first participant raises the topic.
	opener := participants[0]
	messages = append(messages, ScriptMessage{
		CreatureID: opener.CreatureID,
		Text:       strings.ReplaceAll(g.template(CategoryQuestion), "{topic}", topic.Text),
		Order:      order,
		Sentiment:  models.SentimentNeutral,
	})
	order++

	// Initial reactions from everyone else.
	for _, p := range participants[1:] {
		opinion := opinions[p.CreatureID]
		messages = append(messages, ScriptMessage{
			CreatureID: p.CreatureID,
			Text:       g.template(opinion.Sentiment),
			Order:      order,
			Sentiment:  opinion.Sentiment,
		})
		order++
	}

	agreement, disagreement := countTone(opinions)

	// Opener responds to the room.
	openerReaction := CategoryReactionNeutral
	openerSentiment := models.SentimentNeutral
	if agreement > disagreement {
		openerReaction = CategoryReactionPositive
		openerSentiment = models.SentimentPositive
	} else if disagreement > agreement {
		openerReaction = CategoryReactionNegative
		openerSentiment = models.SentimentNegative
	}
	messages = append(messages, ScriptMessage{
		CreatureID: opener.CreatureID,
		Text:       g.template(openerReaction),
		Order:      order,
		Sentiment:  openerSentiment,
	})
	order++

	// Back-and-forth, one or two more rounds toned by the majority.
	rounds := 1
	if g.rand.Float64() > 0.5 {
		rounds = 2
	}
	for round := 0; round < rounds; round++ {
		p := participants[g.rand.Intn(len(participants))]
		opinion := opinions[p.CreatureID]

		reaction := CategoryReactionNeutral
		if agreement > disagreement {
			if opinion.Sentiment == models.SentimentPositive {
				reaction = CategoryReactionPositive
			}
		} else {
			if opinion.Sentiment == models.SentimentNegative {
				reaction = CategoryReactionNegative
			}
		}

		messages = append(messages, ScriptMessage{
			CreatureID: p.CreatureID,
			Text:       g.template(reaction),
			Order:      order,
			Sentiment:  opinion.Sentiment,
		})
		order++
	}

	// Closing line toned by the majority.
	closer := participants[g.rand.Intn(len(participants))]
	closing := CategoryClosingNeutral
	if agreement > disagreement {
		closing = CategoryClosingPositive
	} else if disagreement > agreement {
		closing = CategoryClosingNegative
	}
	messages = append(messages, ScriptMessage{
		CreatureID: closer.CreatureID,
		Text:       g.template(closing),
		Order:      order,
		Sentiment:  opinions[closer.CreatureID].Sentiment,
	})

	return &Script{
		Messages:   messages,
		MoodImpact: moodImpact(participants, opinions, agreement, disagreement),
	}
}

// assignOpinions gives the opener a random stance and biases the rest
// toward the topic's declared sentiment.
func (g *Generator) assignOpinions(participants []models.Participant, topic *models.Topic) map[int64]Opinion {
	opinions := make(map[int64]Opinion, len(participants))

	opinions[participants[0].CreatureID] = Opinion{
		Sentiment: g.randomSentiment(),
		Strength:  g.rand.Float64(),
	}

	for _, p := range participants[1:] {
		var sentiment string
		if g.rand.Float64() < 0.6 {
			// Align with the topic's declared sentiment.
			switch topic.SentimentTag {
			case "controversial":
				if g.rand.Float64() < 0.5 {
					sentiment = models.SentimentPositive
				} else {
					sentiment = models.SentimentNegative
				}
			case "funny", "exciting":
				if g.rand.Float64() < 0.7 {
					sentiment = models.SentimentPositive
				} else {
					sentiment = models.SentimentNeutral
				}
			default:
				sentiment = g.randomSentiment()
			}
		} else {
			sentiment = g.randomSentiment()
		}

		opinions[p.CreatureID] = Opinion{
			Sentiment: sentiment,
			Strength:  g.rand.Float64(),
		}
	}

	return opinions
}

// moodImpact applies the majority-matching table: matching the majority
// tone makes a participant happy, clashing with it makes them unhappy,
// sharing the minority stance is merely neutral ("not alone"), and a
// tie leaves everyone neutral.
func moodImpact(participants []models.Participant, opinions map[int64]Opinion, agreement, disagreement int) MoodImpact {
	var impact MoodImpact

	for _, p := range participants {
		opinion := opinions[p.CreatureID]

		switch {
		case agreement > disagreement:
			switch opinion.Sentiment {
			case models.SentimentPositive:
				impact.Happy = append(impact.Happy, p.CreatureID)
			case models.SentimentNeutral:
				impact.Neutral = append(impact.Neutral, p.CreatureID)
			default:
				impact.Unhappy = append(impact.Unhappy, p.CreatureID)
			}
		case disagreement > agreement:
			switch opinion.Sentiment {
			case models.SentimentNegative:
				impact.Neutral = append(impact.Neutral, p.CreatureID)
			case models.SentimentPositive:
				impact.Unhappy = append(impact.Unhappy, p.CreatureID)
			default:
				impact.Neutral = append(impact.Neutral, p.CreatureID)
			}
		default:
			impact.Neutral = append(impact.Neutral, p.CreatureID)
		}
	}

	return impact
}

// generateInactivity scripts the returning-absent-owner scenario. It is
// deliberately punitive: mood outcomes skew 70% unhappy regardless of
// what was actually said.
func (g *Generator) generateInactivity(participants []models.Participant, topic *models.Topic) *Script {
	messages := []ScriptMessage{}
	order := 0

	// The opener brings up the owner's absence verbatim.
	opener := participants[0]
	messages = append(messages, ScriptMessage{
		CreatureID: opener.CreatureID,
		Text:       topic.Text,
		Order:      order,
		Sentiment:  models.SentimentNegative,
	})
	order++

	// Reactions: mostly concern and negativity, some optimism.
	for _, p := range participants[1:] {
		var sentiment, category string
		if g.rand.Float64() < 0.6 {
			sentiment = models.SentimentNegative
			category = CategoryInactivityConcern
			if g.rand.Float64() >= 0.5 {
				category = CategoryInactivityNegative
			}
		} else {
			sentiment = models.SentimentNeutral
			category = CategoryInactivityOptimistic
		}
		messages = append(messages, ScriptMessage{
			CreatureID: p.CreatureID,
			Text:       g.template(category),
			Order:      order,
			Sentiment:  sentiment,
		})
		order++
	}

	// Later exchanges turn darker.
	rounds := 1
	if g.rand.Float64() > 0.5 {
		rounds = 2
	}
	for round := 0; round < rounds; round++ {
		p := participants[g.rand.Intn(len(participants))]
		if g.rand.Float64() < 0.7 {
			messages = append(messages, ScriptMessage{
				CreatureID: p.CreatureID,
				Text:       g.template(CategoryInactivityConcern),
				Order:      order,
				Sentiment:  models.SentimentNegative,
			})
		} else {
			messages = append(messages, ScriptMessage{
				CreatureID: p.CreatureID,
				Text:       g.template(CategoryInactivityOptimistic),
				Order:      order,
				Sentiment:  models.SentimentNeutral,
			})
		}
		order++
	}

	// Closing, usually downbeat.
	closer := participants[g.rand.Intn(len(participants))]
	if g.rand.Float64() < 0.75 {
		messages = append(messages, ScriptMessage{
			CreatureID: closer.CreatureID,
			Text:       g.template(CategoryClosingNegative),
			Order:      order,
			Sentiment:  models.SentimentNegative,
		})
	} else {
		messages = append(messages, ScriptMessage{
			CreatureID: closer.CreatureID,
			Text:       g.template(CategoryClosingNeutral),
			Order:      order,
			Sentiment:  models.SentimentNeutral,
		})
	}

	var impact MoodImpact
	for _, p := range participants {
		if g.rand.Float64() < 0.7 {
			impact.Unhappy = append(impact.Unhappy, p.CreatureID)
		} else {
			impact.Neutral = append(impact.Neutral, p.CreatureID)
		}
	}

	return &Script{Messages: messages, MoodImpact: impact}
}

func (g *Generator) template(category string) string {
	templates := g.templates[category]
	if len(templates) == 0 {
		return ""
	}
	return templates[g.rand.Intn(len(templates))]
}

func (g *Generator) randomSentiment() string {
	roll := g.rand.Float64()
	switch {
	case roll < 0.4:
		return models.SentimentPositive
	case roll < 0.7:
		return models.SentimentNeutral
	default:
		return models.SentimentNegative
	}
}

func countTone(opinions map[int64]Opinion) (agreement, disagreement int) {
	for _, o := range opinions {
		switch o.Sentiment {
		case models.SentimentPositive:
			agreement++
		case models.SentimentNegative:
			disagreement++
		}
	}
	return agreement, disagreement
}
