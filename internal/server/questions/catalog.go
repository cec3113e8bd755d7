// Package questions holds the fixed self-reflection catalog and produces
// per-session orderings of it. The catalog itself is immutable; ordering
// is an artifact generated once per session and persisted by the caller.
package questions

import "math/rand"

// Question is one catalog entry. Declinable questions may be skipped and
// revisited during the review pass.
type Question struct {
	ID         int
	Text       string
	Declinable bool
}

// The catalog is partitioned into a mandatory opening question, a
// mandatory closing question, and a shuffled middle set. IDs are stable
// forever: stored responses reference them.
var catalog = []Question{
	{ID: 1, Text: "What brought you here today?", Declinable: false},

	{ID: 2, Text: "What do you consider your greatest achievement so far?", Declinable: true},
	{ID: 3, Text: "When do you feel most like yourself?", Declinable: true},
	{ID: 4, Text: "What is a belief you held strongly five years ago that you no longer hold?", Declinable: true},
	{ID: 5, Text: "What do you fear most about the years ahead?", Declinable: true},
	{ID: 6, Text: "Whose opinion of you matters most, and why?", Declinable: true},
	{ID: 7, Text: "What is something you pretend to understand but do not?", Declinable: true},
	{ID: 8, Text: "When were you last genuinely surprised by your own behavior?", Declinable: true},
	{ID: 9, Text: "What do you owe the people who raised you?", Declinable: true},
	{ID: 10, Text: "What would you attempt if you knew no one would ever find out?", Declinable: true},
	{ID: 11, Text: "Which of your habits would you defend against any criticism?", Declinable: true},
	{ID: 12, Text: "What compliment do you have trouble accepting?", Declinable: true},
	{ID: 13, Text: "What is the most useful mistake you have made?", Declinable: true},
	{ID: 14, Text: "When did you last change your mind about something important?", Declinable: true},
	{ID: 15, Text: "What do you withhold from the people closest to you?", Declinable: true},
	{ID: 16, Text: "What part of your daily life would your younger self find unrecognizable?", Declinable: true},
	{ID: 17, Text: "What are you waiting for permission to do?", Declinable: true},
	{ID: 18, Text: "Which promise to yourself have you broken most often?", Declinable: true},
	{ID: 19, Text: "What does rest look like for you, honestly?", Declinable: true},
	{ID: 20, Text: "What is a question you hope no one ever asks you?", Declinable: true},
	{ID: 21, Text: "Whom have you never forgiven, and what would forgiveness cost?", Declinable: true},
	{ID: 22, Text: "What do you practice that you never show anyone?", Declinable: true},
	{ID: 23, Text: "When do you perform a version of yourself, and for whom?", Declinable: true},
	{ID: 24, Text: "What would be the title of the chapter of your life you are in now?", Declinable: true},
	{ID: 25, Text: "What small kindness do you still remember receiving?", Declinable: true},
	{ID: 26, Text: "What are you currently avoiding deciding?", Declinable: true},
	{ID: 27, Text: "Which of your convictions would survive losing everything?", Declinable: true},
	{ID: 28, Text: "What does your anger usually protect?", Declinable: true},
	{ID: 29, Text: "What have you inherited that you hope not to pass on?", Declinable: true},
	{ID: 30, Text: "Where do you go, in place or in mind, to feel safe?", Declinable: true},
	{ID: 31, Text: "What would you like to be wrong about?", Declinable: true},
	{ID: 32, Text: "What part of your story do you tell differently depending on the listener?", Declinable: true},
	{ID: 33, Text: "What debt of gratitude have you never paid?", Declinable: true},
	{ID: 34, Text: "What are you building that you will never see finished?", Declinable: true},

	{ID: 35, Text: "Having answered all of this: what is one true thing you can say about yourself now?", Declinable: false},
}

var byID = func() map[int]Question {
	m := make(map[int]Question, len(catalog))
	for _, q := range catalog {
		m[q.ID] = q
	}
	return m
}()

// Count is the catalog size.
func Count() int { return len(catalog) }

// FirstID and LastID are the fixed opening and closing questions.
func FirstID() int { return catalog[0].ID }
func LastID() int  { return catalog[len(catalog)-1].ID }

// ByID looks a question up by its stable identifier.
func ByID(id int) (Question, bool) {
	q, ok := byID[id]
	return q, ok
}

// All returns a copy of the catalog in canonical order.
func All() []Question {
	out := make([]Question, len(catalog))
	copy(out, catalog)
	return out
}

// NewOrder materializes a fresh ordering: the opening question, the middle
// set shuffled by Fisher-Yates, the closing question. The catalog is not
// mutated; only the returned id sequence is randomized. Callers persist
// the result once per session and never regenerate it.
func NewOrder() []int {
	middle := make([]int, 0, len(catalog)-2)
	for _, q := range catalog[1 : len(catalog)-1] {
		middle = append(middle, q.ID)
	}

	for i := len(middle) - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		middle[i], middle[j] = middle[j], middle[i]
	}

	order := make([]int, 0, len(catalog))
	order = append(order, FirstID())
	order = append(order, middle...)
	order = append(order, LastID())
	return order
}
