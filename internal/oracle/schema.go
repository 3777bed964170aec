package oracle

import "encoding/json"

// Prompts stay in French: the notices are French and the summaries must
// come back in French.
const (
	documentInfoPrompt = `Analyse le texte ci-dessous et renvoie un JSON avec les champs suivants :
- summary: Un résumé du texte en français (uniquement en français) et en 100 mots maximum.
- is_animal_project: le booléen indiquant si le texte est lié à un projet d'élevage animal
- animal_type: le type d'animal (ovin, caprin, bovin, porcin, volaille) si le projet est un projet d'élevage animal, sinon renvoie null
- animal_number: le nombre d'animaux (nombre) si le projet est un projet d'élevage animal si il est précisé, sinon renvoie null
Voici le texte à analyser :
%s`

	intensiveFarmingPrompt = `Analyse le texte ci-dessous et renvoie un booléen indiquant si le projet est lié à l'agriculture intensive.
Voici le texte :
%s`

	subDocumentsPrompt = `La page décrite ci-dessous est un sommaire regroupant plusieurs documents administratifs.
À partir du texte de la page et des liens listés, renvoie un JSON avec le champ documents : la liste des documents réels.
Chaque document comporte les champs title (titre du document), link (URL du lien) et date (date au format JJ/MM/AAAA si présente, sinon une chaîne vide).
Ignore les liens de navigation et renvoie uniquement les documents téléchargeables ou consultables.
Voici le texte de la page :
%s
Voici les liens (texte => URL) :
%s`
)

// Response schemas for the model's structured-output mode. Strict mode
// requires every property listed under required and no extras.
var (
	documentInfoSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"summary": {"type": "string"},
			"is_animal_project": {"type": "boolean"},
			"animal_type": {"type": ["string", "null"]},
			"animal_number": {"type": ["integer", "null"]}
		},
		"required": ["summary", "is_animal_project", "animal_type", "animal_number"],
		"additionalProperties": false
	}`)

	intensiveFarmingSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"is_intensive_farming": {"type": "boolean"}
		},
		"required": ["is_intensive_farming"],
		"additionalProperties": false
	}`)

	subDocumentsSchema = json.RawMessage(`{
		"type": "object",
		"properties": {
			"documents": {
				"type": "array",
				"items": {
					"type": "object",
					"properties": {
						"title": {"type": "string"},
						"link": {"type": "string"},
						"date": {"type": "string"}
					},
					"required": ["title", "link", "date"],
					"additionalProperties": false
				}
			}
		},
		"required": ["documents"],
		"additionalProperties": false
	}`)
)
