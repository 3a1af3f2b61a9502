package session

import "strings"

// Canned replies used when the conversational backend misses the turn
// deadline or errors. Matching is keyword based with a fixed priority;
// the first matching bucket wins.
const (
	fallbackBuy      = "Très bien, vous cherchez à acheter. Pouvez-vous me préciser le type de bien et le secteur qui vous intéressent ?"
	fallbackSell     = "Très bien, vous souhaitez vendre. Pouvez-vous me décrire votre bien et sa localisation ?"
	fallbackEstimate = "Bien sûr, nous pouvons estimer votre bien. Pouvez-vous m'indiquer son adresse et sa superficie ?"
	fallbackGreeting = "Bonjour ! Comment puis-je vous aider avec votre projet immobilier ?"
	fallbackGeneric  = "Je vous écoute. Pouvez-vous m'en dire un peu plus sur votre demande ?"
)

var fallbackBuckets = []struct {
	reply    string
	keywords []string
}{
	{fallbackBuy, []string{"buy", "acheter", "achat", "purchase", "property", "bien", "appartement", "maison"}},
	{fallbackSell, []string{"sell", "vendre", "vente", "sale"}},
	{fallbackEstimate, []string{"estimate", "estimation", "value", "valeur", "prix"}},
	{fallbackGreeting, []string{"hello", "hi", "hey", "bonjour", "salut"}},
}

// FallbackReply picks a canned reply for a caller utterance.
func FallbackReply(text string) string {
	lower := strings.ToLower(text)
	for _, b := range fallbackBuckets {
		for _, kw := range b.keywords {
			if strings.Contains(lower, kw) {
				return b.reply
			}
		}
	}
	return fallbackGeneric
}
