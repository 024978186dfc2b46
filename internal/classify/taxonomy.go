package classify

// ServiceTypeRules is the canonical service-type taxonomy in display order.
func ServiceTypeRules() Rules {
	return Rules{
		{Label: "Spoed Loodgieter", Match: Keywords("spoed", "24/7", "24-uurs", "24 uur", "nooddienst", "emergency")},
		{Label: "CV Installatie", Match: Keywords("cv", "c.v.", "ketel", "verwarming", "hvac", "heating")},
		{Label: "Riolering & Ontstopping", Match: Keywords("riool", "riolering", "ontstop", "verstop", "afvoer")},
		{Label: "Lekkage Reparatie", Match: Keywords("lekkage", "lekdetectie", "lekkende")},
		{Label: "Badkamer Renovatie", Match: Keywords("badkamer", "sanitair")},
		{Label: "Dakwerk", Match: Keywords("dakdek", "dakwerk", "dakgoot", "roofing")},
		{Label: "Installatietechniek", Match: Keywords("installatie", "installateur", "installatietechniek")},
		{Label: "Gas & Water", Match: Keywords("gas en water", "gas & water", "gas-water", "waterleiding", "gasleiding")},
	}
}

// SpecializationRules derive the optional specializations of a business.
func SpecializationRules() Rules {
	return Rules{
		{Label: "Warmtepompen", Match: Keywords("warmtepomp")},
		{Label: "Vloerverwarming", Match: Keywords("vloerverwarming")},
		{Label: "Zonneboilers", Match: Keywords("zonneboiler", "zonnesystemen")},
		{Label: "Waterontharders", Match: Keywords("waterontharder", "ontharder")},
		{Label: "Duurzame Installaties", Match: Keywords("duurzaam", "duurzame", "energie")},
	}
}

// CertificationRules pick up certifications advertised in business names.
func CertificationRules() Rules {
	return Rules{
		{Label: "Erkend Installateur", Match: Keywords("erkend")},
		{Label: "KIWA", Match: Keywords("kiwa")},
		{Label: "STEK", Match: Keywords("stek")},
		{Label: "InstallQ", Match: Keywords("installq")},
		{Label: "Techniek Nederland", Match: Keywords("techniek nederland")},
	}
}
