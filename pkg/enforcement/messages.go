package enforcement

// Messages are the guidance texts shown with a rejection.
type Messages struct {
	UseFreeText          string `json:"useFreeText"`
	PickValidOption      string `json:"pickValidOption"`
	BlockedDeterministic string `json:"blockedDeterministic"`
	BlockedGuided        string `json:"blockedGuided"`
	InternalError        string `json:"internalError"`
}

// Catalog maps a session language to its messages.
type Catalog map[string]Messages

// FallbackLanguage is used when the session language is unset or unknown.
const FallbackLanguage = "es-AR"

// DefaultCatalog returns the messages for the languages offered at ASK_LANGUAGE.
func DefaultCatalog() Catalog {
	return Catalog{
		"es-AR": {
			UseFreeText:          "En este paso escribime tu respuesta con tus palabras.",
			PickValidOption:      "Elegí una de las opciones que te muestro.",
			BlockedDeterministic: "Esa opción no está disponible ahora. Elegí una de las opciones de abajo.",
			BlockedGuided:        "Todavía no podemos avanzar con esa opción. Seguí con los pasos o contame qué pasó.",
			InternalError:        "Tuvimos un problema interno. Probá de nuevo en unos minutos.",
		},
		"es-ES": {
			UseFreeText:          "En este paso escribe tu respuesta con tus palabras.",
			PickValidOption:      "Elige una de las opciones que te muestro.",
			BlockedDeterministic: "Esa opción no está disponible ahora. Elige una de las opciones de abajo.",
			BlockedGuided:        "Aún no podemos avanzar con esa opción. Sigue con los pasos o cuéntame qué ha pasado.",
			InternalError:        "Hemos tenido un problema interno. Inténtalo de nuevo en unos minutos.",
		},
		"en": {
			UseFreeText:          "Please type your answer for this step.",
			PickValidOption:      "Please pick one of the options shown.",
			BlockedDeterministic: "That option is not available right now. Please pick one of the options below.",
			BlockedGuided:        "We can't move on with that option yet. Keep going with the steps or tell me what happened.",
			InternalError:        "Something went wrong on our side. Please try again in a few minutes.",
		},
	}
}

// For returns the messages for lang, falling back to FallbackLanguage and then
// to any entry.
func (c Catalog) For(lang string) Messages {
	if m, ok := c[lang]; ok {
		return m
	}
	if m, ok := c[FallbackLanguage]; ok {
		return m
	}
	for _, m := range c {
		return m
	}
	return Messages{}
}
