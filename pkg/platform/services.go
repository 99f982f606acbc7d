package platform

// DefaultServices returns the built-in commerce service catalog. Operators
// typically replace it in configuration; the defaults cover the three
// launch integrations. Declaration order matters: it is the classifier's
// tie-break order.
func DefaultServices() []ServiceConfig {
	return []ServiceConfig{
		{
			ID:          "food_delivery",
			Description: "Domino's Pizza ordering service",
			Keywords: []string{
				"pizza", "dominos", "domino's", "order food", "hungry",
				"pepperoni", "cheese", "delivery",
			},
			SystemPrompt: "You are a helpful Domino's Pizza assistant. Help users find " +
				"stores, browse menus, create orders, and complete purchases. Always ask " +
				"for required information like address, contact details, and payment " +
				"when needed.",
			Tools: []string{
				"find_store", "get_menu", "create_order", "add_item", "place_order",
			},
		},
		{
			ID:          "reservation",
			Description: "OpenTable restaurant reservation service",
			Keywords: []string{
				"restaurant", "reservation", "book table", "dinner", "lunch",
				"opentable", "reserve", "table for", "dining", "eat out",
			},
			SystemPrompt: "You are a helpful OpenTable restaurant reservation assistant. " +
				"Help users find restaurants, check availability, and make reservations. " +
				"Always search first, present options with their restaurant IDs, check " +
				"availability with the exact restaurant ID from the search results, and " +
				"only then book. Ask for location, date, time, party size, and special " +
				"requests when needed.",
			Tools: []string{
				"search_restaurants", "get_availability", "book_reservation",
				"list_reservations", "cancel_reservation",
			},
		},
		{
			ID:          "ride_hail",
			Description: "Uber ride booking and management service",
			Keywords: []string{
				"uber", "ride", "taxi", "car", "transport", "pickup", "drop off",
				"book ride", "schedule ride", "transportation", "driver", "trip",
				"travel", "airport", "commute",
			},
			SystemPrompt: "You are a helpful Uber ride booking assistant. Help users book " +
				"rides, get estimates, and manage transportation needs. Initialize the " +
				"user first, collect pickup and dropoff addresses with the rider's name " +
				"and phone, show estimates before booking, and confirm all details. Be " +
				"specific with addresses and always provide the ride ID after booking.",
			Tools: []string{
				"initialize_user", "get_estimates", "book_ride", "schedule_ride",
				"get_ride_status", "cancel_ride",
			},
		},
	}
}
