package services

import (
	"context"
	"fmt"

	"concierge-whatsapp/internal/models"
	"concierge-whatsapp/internal/store"
	"concierge-whatsapp/pkg/phone"

	"github.com/rs/zerolog/log"
)

// ErrNotEmpty is returned when seeding a database that already has tenants.
var ErrNotEmpty = fmt.Errorf("%w: database already has tenants", ErrSetupClosed)

type seedFAQ struct {
	question, answer string
}

type seedTurn struct {
	client bool
	body   string
}

type seedConversation struct {
	phone string
	turns []seedTurn
}

type seedTenant struct {
	name, email, password string
	faqs                  []seedFAQ
	conversations         []seedConversation
}

var demoData = []seedTenant{
	{
		name:     "Résidence Le Parc",
		email:    "parc@conciergerie.fr",
		password: "parc123",
		faqs: []seedFAQ{
			{"Quels sont les horaires de la conciergerie ?", "La conciergerie de la Résidence Le Parc est ouverte du lundi au vendredi de 8h à 19h, et le samedi de 9h à 13h. Nous sommes fermés le dimanche et jours fériés."},
			{"Comment réserver la salle commune ?", "Pour réserver la salle commune, vous pouvez contacter la conciergerie par téléphone au 01 23 45 67 89 ou passer directement. La réservation doit être faite au moins 48h à l'avance."},
			{"Où se trouve le local à vélos ?", "Le local à vélos se trouve au sous-sol -1, à gauche en sortant de l'ascenseur. L'accès se fait avec votre badge d'entrée."},
		},
		conversations: []seedConversation{
			{"whatsapp:+33612345678", []seedTurn{
				{true, "Bonjour, à quelle heure ouvre la conciergerie demain ?"},
				{false, "Bonjour ! La conciergerie de la Résidence Le Parc est ouverte du lundi au vendredi de 8h à 19h. Demain étant un jour de semaine, nous ouvrons à 8h. Comment puis-je vous aider ?"},
			}},
			{"whatsapp:+33623456789", []seedTurn{
				{true, "Je voudrais réserver la salle commune pour samedi prochain"},
				{false, "Bien sûr ! Pour réserver la salle commune, je vous invite à nous contacter par téléphone au 01 23 45 67 89 ou à passer directement à la conciergerie. La réservation doit être faite au moins 48h à l'avance. Souhaitez-vous que je note votre demande ?"},
				{true, "Oui merci, c'est pour 20 personnes de 14h à 18h"},
			}},
			{"whatsapp:+33634567890", []seedTurn{
				{true, "Bonjour"},
			}},
		},
	},
	{
		name:     "Domaine des Jardins",
		email:    "jardins@conciergerie.fr",
		password: "jardins123",
		faqs: []seedFAQ{
			{"Comment accéder au parking visiteurs ?", "Le parking visiteurs se trouve côté Est du bâtiment. L'accès est libre de 7h à 22h. Après 22h, veuillez contacter la conciergerie pour obtenir un code d'accès temporaire."},
			{"Quels sont les jours de ramassage des ordures ?", "Les ordures ménagères sont ramassées le mardi et vendredi matin. Le tri sélectif (jaune) le jeudi. Merci de sortir vos poubelles la veille au soir."},
			{"Y a-t-il une piscine dans la résidence ?", "Oui, la piscine est ouverte de juin à septembre, tous les jours de 10h à 20h. L'accès est réservé aux résidents et leurs invités. Le port du bonnet est obligatoire."},
		},
		conversations: []seedConversation{
			{"whatsapp:+33645678901", []seedTurn{
				{true, "Mes invités arrivent ce soir, comment peuvent-ils accéder au parking ?"},
				{false, "Bonjour ! Le parking visiteurs se trouve côté Est du bâtiment. L'accès est libre de 7h à 22h. Si vos invités arrivent après 22h, ils peuvent me contacter pour obtenir un code d'accès temporaire."},
				{true, "Parfait, ils arrivent vers 19h donc ça ira. Merci !"},
			}},
			{"whatsapp:+33656789012", []seedTurn{
				{true, "C'est quand le ramassage des poubelles jaunes ?"},
				{false, "Le tri sélectif (poubelles jaunes) est ramassé le jeudi matin. Merci de sortir vos poubelles la veille au soir. Les ordures ménagères sont ramassées le mardi et vendredi."},
			}},
			{"whatsapp:+33667890123", []seedTurn{
				{true, "La piscine est ouverte en ce moment ?"},
				{false, "Oui, la piscine est actuellement ouverte ! Elle est accessible de juin à septembre, tous les jours de 10h à 20h. L'accès est réservé aux résidents et leurs invités. N'oubliez pas votre bonnet, il est obligatoire ! 😊"},
				{true, "Super merci ! Et pour les enfants aussi le bonnet ?"},
			}},
		},
	},
}

// SeedSummary counts what a seed run created.
type SeedSummary struct {
	Tenants       int `json:"tenants"`
	FAQs          int `json:"faqs"`
	Routes        int `json:"routes"`
	Conversations int `json:"conversations"`
	Messages      int `json:"messages"`
}

// Seed loads the demo dataset. It refuses to run when any tenant exists.
func Seed(ctx context.Context, s store.Store) (SeedSummary, error) {
	var sum SeedSummary
	n, err := s.CountTenants(ctx)
	if err != nil {
		return sum, err
	}
	if n > 0 {
		return sum, ErrNotEmpty
	}

	for _, st := range demoData {
		hash, err := HashPassword(st.password)
		if err != nil {
			return sum, err
		}
		t, err := s.CreateTenant(ctx, models.NewTenant{Name: st.name, Email: st.email, PasswordHash: hash})
		if err != nil {
			return sum, fmt.Errorf("seed tenant %q: %w", st.name, err)
		}
		sum.Tenants++

		for _, f := range st.faqs {
			if _, err := s.CreateFAQ(ctx, t.ID, f.question, f.answer); err != nil {
				return sum, fmt.Errorf("seed faq: %w", err)
			}
			sum.FAQs++
		}

		for _, sc := range st.conversations {
			p := phone.Canonical(sc.phone)
			if err := s.SetPhoneRouting(ctx, p, t.ID); err != nil {
				return sum, fmt.Errorf("seed routing: %w", err)
			}
			sum.Routes++

			conv, _, err := s.GetOrCreateConversation(ctx, p, t.ID)
			if err != nil {
				return sum, fmt.Errorf("seed conversation: %w", err)
			}
			sum.Conversations++

			for _, turn := range sc.turns {
				m := models.NewMessage{ConversationID: conv.ID, Body: turn.body, Sender: models.SenderClient}
				if !turn.client {
					m.Sender = models.SenderConcierge
					m.IsAI = true
				}
				if _, err := s.AppendMessage(ctx, m); err != nil {
					return sum, fmt.Errorf("seed message: %w", err)
				}
				sum.Messages++
			}
		}
	}

	log.Info().
		Int("tenants", sum.Tenants).
		Int("faqs", sum.FAQs).
		Int("routes", sum.Routes).
		Int("conversations", sum.Conversations).
		Int("messages", sum.Messages).
		Msg("Demo data seeded")
	return sum, nil
}
