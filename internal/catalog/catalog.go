// Package catalog holds the static registry of French departmental
// prefecture portals the crawler knows how to scrape. Every entry maps a
// department to its *.gouv.fr domain; search URLs are derived from the
// domain by the pager.
package catalog

// Prefecture identifies one departmental portal on the gouv.fr estate.
type Prefecture struct {
	Name   string `json:"name"`
	Region string `json:"region"`
	Domain string `json:"domain"`
	Code   string `json:"code"`
}

// All returns a copy of the full prefecture table in catalog order.
func All() []Prefecture {
	out := make([]Prefecture, len(prefectures))
	copy(out, prefectures)
	return out
}

// ByRegion returns the prefectures belonging to the named region, in
// catalog order. Unknown regions yield an empty slice.
func ByRegion(region string) []Prefecture {
	var out []Prefecture
	for _, p := range prefectures {
		if p.Region == region {
			out = append(out, p)
		}
	}
	return out
}

// ByDomain looks up a prefecture by its portal domain, e.g.
// "morbihan.gouv.fr".
func ByDomain(domain string) (Prefecture, bool) {
	p, ok := byDomain[domain]
	return p, ok
}

// ByCode looks up a prefecture by its department code, e.g. "56" or "2A".
func ByCode(code string) (Prefecture, bool) {
	for _, p := range prefectures {
		if p.Code == code {
			return p, true
		}
	}
	return Prefecture{}, false
}

// Regions returns the distinct region names in catalog order.
func Regions() []string {
	seen := make(map[string]bool, 16)
	var out []string
	for _, p := range prefectures {
		if !seen[p.Region] {
			seen[p.Region] = true
			out = append(out, p.Region)
		}
	}
	return out
}

// Domains returns every portal domain in catalog order.
func Domains() []string {
	out := make([]string, len(prefectures))
	for i, p := range prefectures {
		out[i] = p.Domain
	}
	return out
}

var byDomain = func() map[string]Prefecture {
	m := make(map[string]Prefecture, len(prefectures))
	for _, p := range prefectures {
		m[p.Domain] = p
	}
	return m
}()

// prefectures lists the metropolitan departments with a searchable
// portal. Overseas territories use a different CMS and are excluded.
var prefectures = []Prefecture{
	// Auvergne-Rhône-Alpes
	{Name: "Ain", Region: "Auvergne-Rhône-Alpes", Domain: "ain.gouv.fr", Code: "01"},
	{Name: "Allier", Region: "Auvergne-Rhône-Alpes", Domain: "allier.gouv.fr", Code: "03"},
	{Name: "Ardèche", Region: "Auvergne-Rhône-Alpes", Domain: "ardeche.gouv.fr", Code: "07"},
	{Name: "Cantal", Region: "Auvergne-Rhône-Alpes", Domain: "cantal.gouv.fr", Code: "15"},
	{Name: "Drôme", Region: "Auvergne-Rhône-Alpes", Domain: "drome.gouv.fr", Code: "26"},
	{Name: "Isère", Region: "Auvergne-Rhône-Alpes", Domain: "isere.gouv.fr", Code: "38"},
	{Name: "Loire", Region: "Auvergne-Rhône-Alpes", Domain: "loire.gouv.fr", Code: "42"},
	{Name: "Haute-Loire", Region: "Auvergne-Rhône-Alpes", Domain: "haute-loire.gouv.fr", Code: "43"},
	{Name: "Puy-de-Dôme", Region: "Auvergne-Rhône-Alpes", Domain: "puy-de-dome.gouv.fr", Code: "63"},
	{Name: "Rhône", Region: "Auvergne-Rhône-Alpes", Domain: "rhone.gouv.fr", Code: "69"},
	{Name: "Savoie", Region: "Auvergne-Rhône-Alpes", Domain: "savoie.gouv.fr", Code: "73"},
	{Name: "Haute-Savoie", Region: "Auvergne-Rhône-Alpes", Domain: "haute-savoie.gouv.fr", Code: "74"},

	// Bourgogne-Franche-Comté
	{Name: "Côte-d'Or", Region: "Bourgogne-Franche-Comté", Domain: "cote-dor.gouv.fr", Code: "21"},
	{Name: "Doubs", Region: "Bourgogne-Franche-Comté", Domain: "doubs.gouv.fr", Code: "25"},
	{Name: "Jura", Region: "Bourgogne-Franche-Comté", Domain: "jura.gouv.fr", Code: "39"},
	{Name: "Nièvre", Region: "Bourgogne-Franche-Comté", Domain: "nievre.gouv.fr", Code: "58"},
	{Name: "Saône-et-Loire", Region: "Bourgogne-Franche-Comté", Domain: "saone-et-loire.gouv.fr", Code: "71"},
	{Name: "Yonne", Region: "Bourgogne-Franche-Comté", Domain: "yonne.gouv.fr", Code: "89"},
	{Name: "Haute-Saône", Region: "Bourgogne-Franche-Comté", Domain: "haute-saone.gouv.fr", Code: "70"},
	{Name: "Territoire-de-Belfort", Region: "Bourgogne-Franche-Comté", Domain: "territoire-de-belfort.gouv.fr", Code: "90"},

	// Bretagne
	{Name: "Côtes d'Armor", Region: "Bretagne", Domain: "cotes-darmor.gouv.fr", Code: "22"},
	{Name: "Finistère", Region: "Bretagne", Domain: "finistere.gouv.fr", Code: "29"},
	{Name: "Ille-et-Vilaine", Region: "Bretagne", Domain: "ille-et-vilaine.gouv.fr", Code: "35"},
	{Name: "Morbihan", Region: "Bretagne", Domain: "morbihan.gouv.fr", Code: "56"},

	// Centre-Val de Loire
	{Name: "Cher", Region: "Centre-Val de Loire", Domain: "cher.gouv.fr", Code: "18"},
	{Name: "Eure-et-Loir", Region: "Centre-Val de Loire", Domain: "eure-et-loir.gouv.fr", Code: "28"},
	{Name: "Indre", Region: "Centre-Val de Loire", Domain: "indre.gouv.fr", Code: "36"},
	{Name: "Indre-et-Loire", Region: "Centre-Val de Loire", Domain: "indre-et-loire.gouv.fr", Code: "37"},
	{Name: "Loir-et-Cher", Region: "Centre-Val de Loire", Domain: "loir-et-cher.gouv.fr", Code: "41"},
	{Name: "Loiret", Region: "Centre-Val de Loire", Domain: "loiret.gouv.fr", Code: "45"},

	// Grand Est
	{Name: "Ardennes", Region: "Grand Est", Domain: "ardennes.gouv.fr", Code: "08"},
	{Name: "Aube", Region: "Grand Est", Domain: "aube.gouv.fr", Code: "10"},
	{Name: "Marne", Region: "Grand Est", Domain: "marne.gouv.fr", Code: "51"},
	{Name: "Haute-Marne", Region: "Grand Est", Domain: "haute-marne.gouv.fr", Code: "52"},
	{Name: "Meurthe-et-Moselle", Region: "Grand Est", Domain: "meurthe-et-moselle.gouv.fr", Code: "54"},
	{Name: "Meuse", Region: "Grand Est", Domain: "meuse.gouv.fr", Code: "55"},
	{Name: "Moselle", Region: "Grand Est", Domain: "moselle.gouv.fr", Code: "57"},
	{Name: "Bas-Rhin", Region: "Grand Est", Domain: "bas-rhin.gouv.fr", Code: "67"},
	{Name: "Haut-Rhin", Region: "Grand Est", Domain: "haut-rhin.gouv.fr", Code: "68"},
	{Name: "Vosges", Region: "Grand Est", Domain: "vosges.gouv.fr", Code: "88"},

	// Hauts-de-France
	{Name: "Aisne", Region: "Hauts-de-France", Domain: "aisne.gouv.fr", Code: "02"},
	{Name: "Nord", Region: "Hauts-de-France", Domain: "nord.gouv.fr", Code: "59"},
	{Name: "Oise", Region: "Hauts-de-France", Domain: "oise.gouv.fr", Code: "60"},
	{Name: "Pas-de-Calais", Region: "Hauts-de-France", Domain: "pas-de-calais.gouv.fr", Code: "62"},
	{Name: "Somme", Region: "Hauts-de-France", Domain: "somme.gouv.fr", Code: "80"},

	// Île-de-France
	{Name: "Paris", Region: "Île-de-France", Domain: "paris.gouv.fr", Code: "75"},
	{Name: "Seine-et-Marne", Region: "Île-de-France", Domain: "seine-et-marne.gouv.fr", Code: "77"},
	{Name: "Yvelines", Region: "Île-de-France", Domain: "yvelines.gouv.fr", Code: "78"},
	{Name: "Essonne", Region: "Île-de-France", Domain: "essonne.gouv.fr", Code: "91"},
	{Name: "Hauts-de-Seine", Region: "Île-de-France", Domain: "hauts-de-seine.gouv.fr", Code: "92"},
	{Name: "Seine-Saint-Denis", Region: "Île-de-France", Domain: "seine-saint-denis.gouv.fr", Code: "93"},
	{Name: "Val-de-Marne", Region: "Île-de-France", Domain: "val-de-marne.gouv.fr", Code: "94"},
	{Name: "Val-d'Oise", Region: "Île-de-France", Domain: "val-doise.gouv.fr", Code: "95"},

	// Normandie
	{Name: "Calvados", Region: "Normandie", Domain: "calvados.gouv.fr", Code: "14"},
	{Name: "Eure", Region: "Normandie", Domain: "eure.gouv.fr", Code: "27"},
	{Name: "Manche", Region: "Normandie", Domain: "manche.gouv.fr", Code: "50"},
	{Name: "Orne", Region: "Normandie", Domain: "orne.gouv.fr", Code: "61"},
	{Name: "Seine-Maritime", Region: "Normandie", Domain: "seine-maritime.gouv.fr", Code: "76"},

	// Nouvelle-Aquitaine
	{Name: "Charente", Region: "Nouvelle-Aquitaine", Domain: "charente.gouv.fr", Code: "16"},
	{Name: "Charente-Maritime", Region: "Nouvelle-Aquitaine", Domain: "charente-maritime.gouv.fr", Code: "17"},
	{Name: "Corrèze", Region: "Nouvelle-Aquitaine", Domain: "correze.gouv.fr", Code: "19"},
	{Name: "Creuse", Region: "Nouvelle-Aquitaine", Domain: "creuse.gouv.fr", Code: "23"},
	{Name: "Dordogne", Region: "Nouvelle-Aquitaine", Domain: "dordogne.gouv.fr", Code: "24"},
	{Name: "Gironde", Region: "Nouvelle-Aquitaine", Domain: "gironde.gouv.fr", Code: "33"},
	{Name: "Landes", Region: "Nouvelle-Aquitaine", Domain: "landes.gouv.fr", Code: "40"},
	{Name: "Lot-et-Garonne", Region: "Nouvelle-Aquitaine", Domain: "lot-et-garonne.gouv.fr", Code: "47"},
	{Name: "Pyrénées-Atlantiques", Region: "Nouvelle-Aquitaine", Domain: "pyrenees-atlantiques.gouv.fr", Code: "64"},
	{Name: "Deux-Sèvres", Region: "Nouvelle-Aquitaine", Domain: "deux-sevres.gouv.fr", Code: "79"},
	{Name: "Vienne", Region: "Nouvelle-Aquitaine", Domain: "vienne.gouv.fr", Code: "86"},
	{Name: "Haute-Vienne", Region: "Nouvelle-Aquitaine", Domain: "haute-vienne.gouv.fr", Code: "87"},

	// Occitanie
	{Name: "Ariège", Region: "Occitanie", Domain: "ariege.gouv.fr", Code: "09"},
	{Name: "Aude", Region: "Occitanie", Domain: "aude.gouv.fr", Code: "11"},
	{Name: "Aveyron", Region: "Occitanie", Domain: "aveyron.gouv.fr", Code: "12"},
	{Name: "Gard", Region: "Occitanie", Domain: "gard.gouv.fr", Code: "30"},
	{Name: "Gers", Region: "Occitanie", Domain: "gers.gouv.fr", Code: "32"},
	{Name: "Haute-Garonne", Region: "Occitanie", Domain: "haute-garonne.gouv.fr", Code: "31"},
	{Name: "Hérault", Region: "Occitanie", Domain: "herault.gouv.fr", Code: "34"},
	{Name: "Lot", Region: "Occitanie", Domain: "lot.gouv.fr", Code: "46"},
	{Name: "Lozère", Region: "Occitanie", Domain: "lozere.gouv.fr", Code: "48"},
	{Name: "Hautes-Pyrénées", Region: "Occitanie", Domain: "hautes-pyrenees.gouv.fr", Code: "65"},
	{Name: "Pyrénées-Orientales", Region: "Occitanie", Domain: "pyrenees-orientales.gouv.fr", Code: "66"},
	{Name: "Tarn", Region: "Occitanie", Domain: "tarn.gouv.fr", Code: "81"},
	{Name: "Tarn-et-Garonne", Region: "Occitanie", Domain: "tarn-et-garonne.gouv.fr", Code: "82"},

	// Pays de la Loire
	{Name: "Loire-Atlantique", Region: "Pays de la Loire", Domain: "loire-atlantique.gouv.fr", Code: "44"},
	{Name: "Maine-et-Loire", Region: "Pays de la Loire", Domain: "maine-et-loire.gouv.fr", Code: "49"},
	{Name: "Mayenne", Region: "Pays de la Loire", Domain: "mayenne.gouv.fr", Code: "53"},
	{Name: "Sarthe", Region: "Pays de la Loire", Domain: "sarthe.gouv.fr", Code: "72"},
	{Name: "Vendée", Region: "Pays de la Loire", Domain: "vendee.gouv.fr", Code: "85"},

	// Provence-Alpes-Côte d'Azur
	{Name: "Alpes de Haute-Provence", Region: "Provence-Alpes-Côte d'Azur", Domain: "alpes-de-haute-provence.gouv.fr", Code: "04"},
	{Name: "Hautes-Alpes", Region: "Provence-Alpes-Côte d'Azur", Domain: "hautes-alpes.gouv.fr", Code: "05"},
	{Name: "Alpes-Maritimes", Region: "Provence-Alpes-Côte d'Azur", Domain: "alpes-maritimes.gouv.fr", Code: "06"},
	{Name: "Bouches-du-Rhône", Region: "Provence-Alpes-Côte d'Azur", Domain: "bouches-du-rhone.gouv.fr", Code: "13"},
	{Name: "Var", Region: "Provence-Alpes-Côte d'Azur", Domain: "var.gouv.fr", Code: "83"},
	{Name: "Vaucluse", Region: "Provence-Alpes-Côte d'Azur", Domain: "vaucluse.gouv.fr", Code: "84"},

	// Corse
	{Name: "Corse-du-Sud", Region: "Corse", Domain: "corse-du-sud.gouv.fr", Code: "2A"},
	{Name: "Haute-Corse", Region: "Corse", Domain: "haute-corse.gouv.fr", Code: "2B"},
}
