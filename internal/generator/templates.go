package generator

// Template categories.
const (
	CategoryPositive             = "positive"
	CategoryNegative             = "negative"
	CategoryNeutral              = "neutral"
	CategoryReactionPositive     = "reaction_positive"
	CategoryReactionNegative     = "reaction_negative"
	CategoryReactionNeutral      = "reaction_neutral"
	CategoryQuestion             = "question"
	CategoryClosingPositive      = "closing_positive"
	CategoryClosingNegative      = "closing_negative"
	CategoryClosingNeutral       = "closing_neutral"
	CategoryInactivityConcern    = "inactivity_concern"
	CategoryInactivityNegative   = "inactivity_negative"
	CategoryInactivityOptimistic = "inactivity_optimistic"
)

// Templates maps a category to its message templates. Question
// templates contain a {topic} placeholder. Injected into the Generator
// so tests can supply a reduced table.
type Templates map[string][]string

// DefaultTemplates returns the built-in message template table.
func DefaultTemplates() Templates {
	return Templates{
		CategoryPositive: {
			"I totally agree with {topic}!",
			"This is exactly what I've been thinking!",
			"You get it! This is so true!",
			"Finally someone said it!",
			"I'm here for this energy!",
			"This is the best take I've heard today",
			"Absolutely! Couldn't have said it better",
			"Yes! This! All of this!",
			"I'm so glad we're on the same page",
			"This is actually such a vibe",
		},
		CategoryNegative: {
			"I don't know about that...",
			"That's a terrible take, honestly",
			"Why would anyone think that?",
			"Hard disagree on this one",
			"This is exactly what's wrong with everything",
			"I can't believe people actually believe this",
			"That's the worst opinion I've heard today",
			"No way, this is completely wrong",
			"I'm so tired of hearing this take",
			"This is literally the opposite of the truth",
		},
		CategoryNeutral: {
			"I can see both sides of this",
			"Interesting perspective",
			"Not sure how I feel about this",
			"That's one way to look at it",
			"I never really thought about it that way",
			"Hmm, maybe?",
			"I guess that makes sense",
			"Fair point, I suppose",
			"I'm kind of in the middle on this",
			"It depends on how you look at it",
		},
		CategoryReactionPositive: {
			"Right?! I'm so glad you see it too!",
			"Exactly! We're totally on the same wavelength!",
			"This is why we get along so well",
			"See, you understand!",
			"Finally, someone who gets it!",
			"Yes! Thank you!",
			"I knew you'd understand",
			"We're thinking the same thing!",
		},
		CategoryReactionNegative: {
			"Wait, you actually think that?",
			"We're never going to agree on this",
			"I can't believe you just said that",
			"That's... an interesting take",
			"Okay, we clearly see this differently",
			"I'm just going to pretend I didn't hear that",
			"Wow, okay then",
			"I think we need to agree to disagree",
		},
		CategoryReactionNeutral: {
			"I suppose that's fair",
			"I can see where you're coming from",
			"Maybe you have a point",
			"That's an interesting way to think about it",
			"I hadn't considered that angle",
			"Hmm, you might be right",
			"That's worth thinking about",
		},
		CategoryQuestion: {
			"What do you think about {topic}?",
			"Has anyone seen the latest about {topic}?",
			"Can we talk about {topic}?",
			"So... {topic}. Thoughts?",
			"I need to know what you all think about {topic}",
			"Am I the only one thinking about {topic}?",
			"Okay but seriously, {topic}?",
		},
		CategoryClosingPositive: {
			"Glad we talked about this!",
			"This was a good conversation",
			"Always good chatting with you all",
			"Love these kinds of talks!",
			"This made my day better",
			"Quality conversation right here",
		},
		CategoryClosingNegative: {
			"Well, that was... something",
			"I need to take a break after this",
			"I think I'm done with this topic",
			"That was exhausting",
			"Anyway, moving on...",
			"I'm just going to go now",
		},
		CategoryClosingNeutral: {
			"Interesting discussion",
			"Well, that's that I guess",
			"Food for thought",
			"Anyway, see you all later",
			"Always interesting to hear different views",
		},
		CategoryInactivityConcern: {
			"I haven't seen them in days...",
			"Do you think something's wrong?",
			"Maybe they're just busy?",
			"I hope they come back soon",
			"This is getting worrying",
			"I miss having them around",
			"It's not the same without them here",
			"What if they never come back?",
			"I'm starting to feel abandoned",
			"They used to check on us every day...",
		},
		CategoryInactivityNegative: {
			"They clearly don't care about us anymore",
			"We've been forgotten",
			"I knew this would happen eventually",
			"Why did they even create us if they were going to leave?",
			"This is so unfair to us",
			"I feel so neglected",
			"We're just sitting here waiting for nothing",
			"Maybe we should just give up hope",
		},
		CategoryInactivityOptimistic: {
			"I'm sure they'll be back soon!",
			"Maybe they're on vacation?",
			"Everyone needs a break sometimes",
			"Let's stay positive, they'll return",
			"They've always come back before",
			"I believe in them!",
		},
	}
}
