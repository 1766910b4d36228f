package catalogue

// Default returns the built-in tables for the Pune brochure corpus.
func Default() *Catalogue {
	return &Catalogue{
		Localities: []Entry{
			{Label: "Pimple Nilakh", Aliases: []string{"pimple nilakh"}},
			{Label: "Pimple Saudagar", Aliases: []string{"pimple saudagar"}},
			{Label: "Koregaon Park", Aliases: []string{"koregaon park", "koregaon"}},
			{Label: "Kalyani Nagar", Aliases: []string{"kalyani nagar", "kalyani"}},
			{Label: "Viman Nagar", Aliases: []string{"viman nagar", "viman"}},
			{Label: "Magarpatta", Aliases: []string{"magarpatta"}},
			{Label: "Baner", Aliases: []string{"baner"}},
			{Label: "Wakad", Aliases: []string{"wakad"}},
			{Label: "Hinjewadi", Aliases: []string{"hinjewadi", "hinjawadi"}},
			{Label: "Kharadi", Aliases: []string{"kharadi"}},
			{Label: "Kothrud", Aliases: []string{"kothrud"}},
			{Label: "Hadapsar", Aliases: []string{"hadapsar"}},
			{Label: "Aundh", Aliases: []string{"aundh"}},
			{Label: "Balewadi", Aliases: []string{"balewadi"}},
			{Label: "Pimpri", Aliases: []string{"pimpri"}},
			{Label: "Chinchwad", Aliases: []string{"chinchwad"}},
			{Label: "Wagholi", Aliases: []string{"wagholi"}},
			{Label: "Katraj", Aliases: []string{"katraj"}},
			{Label: "Kondhwa", Aliases: []string{"kondhwa"}},
		},
		PropertyTypes: []Entry{
			{Label: "Apartment", Aliases: []string{"apartment", "apartments", "flat", "flats"}},
			{Label: "Villa", Aliases: []string{"villa", "villas", "row house", "row houses"}},
			{Label: "Plot", Aliases: []string{"plot", "plots", "land"}},
			{Label: "Commercial", Aliases: []string{"commercial", "office", "offices"}},
		},
		QueryPropertyTypes: []Entry{
			{Label: "apartment", Aliases: []string{"apartment", "apartments", "apt", "flat", "flats", "bhk"}},
			{Label: "villa", Aliases: []string{"villa", "villas"}},
			{Label: "house", Aliases: []string{"house", "houses", "bungalow", "bungalows"}},
			{Label: "residential", Aliases: []string{"residential", "home", "homes", "residence"}},
		},
		Actions: []Entry{
			{Label: "rent", Aliases: []string{"rent", "rental", "rentals", "lease", "to rent"}},
			{Label: "buy", Aliases: []string{"buy", "buying", "purchase", "sale", "for sale", "list all", "show me"}},
			{Label: "sell", Aliases: []string{"sell", "selling"}},
		},
		GuidanceNeeds: []Entry{
			{Label: "financing", Aliases: []string{"loan", "loans", "mortgage", "emi", "down payment", "financing", "home loan", "housing finance"}},
			{Label: "eligibility", Aliases: []string{"eligible", "eligibility", "qualify", "requirements", "can i afford"}},
			{Label: "policy", Aliases: []string{"policy", "policies", "regulation", "regulations", "rera", "documentation", "process", "procedure", "approval"}},
			{Label: "comparison", Aliases: []string{"compare", "vs", "versus", "difference", "which is better", "recommend"}},
		},
		Intents: []Entry{
			{Label: "buy", Aliases: []string{"buy", "buying", "purchase", "invest", "investment", "book", "booking", "ownership"}},
			{Label: "rent", Aliases: []string{"rent", "rental", "renting", "lease", "leasing", "tenant", "tenants", "monthly rent"}},
			{Label: "details", Aliases: []string{"specification", "specifications", "specs", "floor plan", "floor plans", "configuration", "configurations", "carpet area", "layout", "project details"}},
			{Label: "knowledge", Aliases: []string{"tell me about", "what is", "what are", "explain", "locality", "neighbourhood", "neighborhood", "amenities", "infrastructure", "connectivity", "facilities", "market"}},
		},
		BudgetTerms:      []string{"budget", "lakh", "lakhs", "crore", "crores", "price", "prices", "cost", "afford", "can i buy"},
		DetailedKeywords: []string{"details", "detail", "about", "tell me more", "information", "specifications", "specs", "amenities", "features", "full", "complete", "all details"},
		BriefKeywords:    []string{"list", "show me", "list all", "summary", "overview", "quick", "brief"},
		ListingVerbs:     []string{"show", "list", "find", "get"},
		InquiryVerbs:     []string{"tell", "what", "which", "why"},
		Greetings: []string{
			"hi", "hello", "hey", "greetings", "hiya", "howdy",
			"good morning", "good afternoon", "good evening",
			"how are you", "how's it going", "what's up",
			"yo", "namaste", "salaam", "sup", "wassup",
		},
		DomainKeywords: []string{
			"property", "properties", "real estate", "apartment", "apartments", "flat", "flats",
			"villa", "villas", "house", "houses", "home", "homes", "bhk", "plot", "plots",
			"rent", "rental", "buy", "lease", "sale", "locality", "amenities", "price", "budget",
			"lakh", "lakhs", "crore", "crores", "project", "projects", "builder", "possession",
			"brochure", "carpet", "sq ft", "sqft", "loan", "emi", "rera", "tenant", "investment",
		},
		OffTopicKeywords: []string{
			"weather", "news", "sports", "cricket", "football", "movie", "movies", "song", "songs",
			"music", "recipe", "cook", "joke", "jokes", "politics", "election", "bitcoin", "crypto",
			"game", "games", "programming", "poem", "horoscope",
		},
	}
}
