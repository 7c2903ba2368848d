package intent

import (
	"fmt"
	"strings"

	"github.com/askely/concierge/internal/models"
)

// Canned concierge copy. The catalog results are illustrative fixtures, not
// live inventory.

// HotelList formats the hotel suggestions for a city.
func HotelList(city string) string {
	hotels := []string{
		fmt.Sprintf("%s Palace", city),
		fmt.Sprintf("Riad %s", city),
		fmt.Sprintf("Dar Atlas %s", city),
		fmt.Sprintf("Luxury Stay %s", city),
		"Hotel Central",
	}
	lines := []string{fmt.Sprintf("🏨 Hôtels à %s :", city)}
	for i, h := range hotels {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, h))
	}
	return strings.Join(lines, "\n")
}

// RestaurantList formats the restaurant suggestions for a city.
func RestaurantList(city string) string {
	restos := []string{
		fmt.Sprintf("%s Gourmet", city),
		fmt.Sprintf("Bistro %s", city),
		fmt.Sprintf("Chez %s", city),
		fmt.Sprintf("La Table %s", city),
		"Café Medina",
	}
	lines := []string{fmt.Sprintf("🍽️ Restaurants à %s :", city)}
	for i, r := range restos {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, r))
	}
	return strings.Join(lines, "\n")
}

// FlightList formats flight options between two cities.
func FlightList(origin, destination string) string {
	return fmt.Sprintf("✈️ Vols de %s à %s :\n1. RAM 08h00\n2. Air Arabia 13h30\n3. Transavia 19h00",
		origin, destination)
}

// TravelPlan formats a three-day circuit for a city.
func TravelPlan(city string) string {
	return fmt.Sprintf("🗺️ Circuit touristique à %s :\n- Jour 1 : visite guidée\n- Jour 2 : cuisine locale\n- Jour 3 : détente & shopping", city)
}

// Deals formats the travel deals for a country.
func Deals(country string) string {
	return fmt.Sprintf("💡 Bons plans au %s :\n- Réductions hébergement\n- Activités gratuites\n- Transports locaux pas chers", country)
}

// BaggageHelp is the canned baggage-claim assistance text.
const BaggageHelp = "🧳 Pour une réclamation bagage : gardez votre étiquette, déclarez la perte au comptoir de la compagnie sous 4h, puis envoyez-nous le numéro de dossier. Nous suivrons la réclamation avec vous."

// Apology is returned when the free-text responder is unavailable.
const Apology = "😔 Désolé, je n'arrive pas à répondre pour le moment. Réessayez dans quelques instants ou envoyez *menu*."

// Welcome greets a user on their first message.
const Welcome = "👋 Bienvenue chez Askely, votre concierge de voyage ! Envoyez *menu* pour découvrir ce que je peux faire."

// Menu lists the recognized commands.
func Menu() string {
	return strings.Join([]string{
		"🤖 Askely peut vous aider :",
		"- hotels à <ville>",
		"- restaurants à <ville>",
		"- vols de <ville> à <ville>",
		"- circuit <ville>",
		"- bons plans <pays>",
		"- bagage (réclamations)",
		"- review <flight|hotel|restaurant|loyalty> (avis guidé, points offerts)",
		"- mes avis / avis publics",
		"- profil",
		"Ou posez votre question librement !",
	}, "\n")
}

// FormatProfile renders the profile card for a user.
func FormatProfile(u *models.User, reviews []models.Review) string {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Profil %s\n", u.DisplayID)
	fmt.Fprintf(&b, "💎 Points Askely : %d\n", u.Points)
	fmt.Fprintf(&b, "📅 Membre depuis : %s", u.CreatedAt.Format("2006-01-02"))
	if len(reviews) > 0 {
		b.WriteString("\n📝 Vos derniers avis :")
		for _, r := range reviews {
			fmt.Fprintf(&b, "\n- %s %d/5 : %s", r.Category, r.Rating, r.Comment)
		}
	}
	return b.String()
}

// FormatReviews renders a public review list.
func FormatReviews(reviews []models.Review) string {
	if len(reviews) == 0 {
		return "Aucun avis pour le moment. Soyez le premier : review hotel"
	}
	lines := []string{"📝 Derniers avis de la communauté :"}
	for _, r := range reviews {
		lines = append(lines, fmt.Sprintf("- %s %d/5 : %s", r.Category, r.Rating, r.Comment))
	}
	return strings.Join(lines, "\n")
}
