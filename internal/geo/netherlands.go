package geo

// DefaultSearchTerms are the queries issued for every city.
var DefaultSearchTerms = []string{
	"loodgieter",
	"spoed loodgieter",
	"loodgietersbedrijf",
	"cv monteur",
	"ontstoppingsdienst",
}

// netherlands lists the twelve provinces with their largest municipalities.
func netherlands() []Province {
	return []Province{
		{Name: "Groningen", Abbr: "GR", Cities: []string{
			"Groningen", "Hoogezand", "Veendam", "Stadskanaal", "Delfzijl", "Winschoten", "Leek",
		}},
		{Name: "Friesland", Abbr: "FR", Cities: []string{
			"Leeuwarden", "Drachten", "Sneek", "Heerenveen", "Harlingen", "Franeker", "Dokkum",
		}},
		{Name: "Drenthe", Abbr: "DR", Cities: []string{
			"Assen", "Emmen", "Hoogeveen", "Meppel", "Coevorden", "Roden",
		}},
		{Name: "Overijssel", Abbr: "OV", Cities: []string{
			"Zwolle", "Enschede", "Deventer", "Hengelo", "Almelo", "Kampen", "Oldenzaal",
		}},
		{Name: "Flevoland", Abbr: "FL", Cities: []string{
			"Almere", "Lelystad", "Dronten", "Emmeloord", "Zeewolde",
		}},
		{Name: "Gelderland", Abbr: "GE", Cities: []string{
			"Arnhem", "Nijmegen", "Apeldoorn", "Ede", "Doetinchem", "Harderwijk", "Zutphen", "Tiel",
		}},
		{Name: "Utrecht", Abbr: "UT", Cities: []string{
			"Utrecht", "Amersfoort", "Nieuwegein", "Veenendaal", "Zeist", "Houten", "IJsselstein",
		}},
		{Name: "Noord-Holland", Abbr: "NH", Cities: []string{
			"Amsterdam", "Haarlem", "Zaandam", "Alkmaar", "Hilversum", "Hoorn", "Purmerend", "Den Helder", "Bergen",
		}},
		{Name: "Zuid-Holland", Abbr: "ZH", Cities: []string{
			"Rotterdam", "Den Haag", "Leiden", "Dordrecht", "Zoetermeer", "Delft", "Gouda", "Schiedam",
		}},
		{Name: "Zeeland", Abbr: "ZE", Cities: []string{
			"Middelburg", "Vlissingen", "Goes", "Terneuzen", "Zierikzee",
		}},
		{Name: "Noord-Brabant", Abbr: "NB", Cities: []string{
			"Eindhoven", "Tilburg", "Breda", "'s-Hertogenbosch", "Helmond", "Oss", "Roosendaal", "Bergen op Zoom",
		}},
		{Name: "Limburg", Abbr: "LI", Cities: []string{
			"Maastricht", "Venlo", "Heerlen", "Sittard", "Roermond", "Weert", "Kerkrade", "Bergen",
		}},
	}
}

// Default returns the built-in geography table.
func Default() *Table {
	t, err := NewTable(netherlands())
	if err != nil {
		panic("geo: built-in table is invalid: " + err.Error())
	}
	return t
}
