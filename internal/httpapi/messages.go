package httpapi

import (
	"fmt"
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// Message keys. The key is also the English text.
const (
	msgInvalidCredentials  = "Incorrect email or password."
	msgEmailNotConfirmed   = "The email address has not been confirmed."
	msgUserExists          = "This email address is already registered."
	msgInvalidEmail        = "Enter a valid email address."
	msgAuthUnavailable     = "The sign-in service is not available. Try again later."
	msgProfileCreateFailed = "The account was created, but the profile could not be saved. Contact support."
	msgConfirmationPending = "Account created. Confirm your email address before signing in."
	msgEnrollmentLimit     = "You can enroll in at most %d courses."
	msgSaveFailed          = "The changes could not be saved. Check your connection."
	msgNotSignedIn         = "Sign in to continue."
	msgForbidden           = "Only administrators can edit courses."
	msgNotFound            = "Not found."
	msgInvalidRequest      = "Invalid request: %s"
)

var (
	supportedLanguages = []language.Tag{language.Spanish, language.English}
	languageMatcher    = language.NewMatcher(supportedLanguages)
	messages           = newCatalog()
)

func newCatalog() *catalog.Builder {
	b := catalog.NewBuilder(catalog.Fallback(language.Spanish))
	es := map[string]string{
		msgInvalidCredentials:  "Correo o contraseña incorrectos.",
		msgEmailNotConfirmed:   "El correo no ha sido confirmado.",
		msgUserExists:          "Este correo ya está registrado.",
		msgInvalidEmail:        "Ingresa un correo válido.",
		msgAuthUnavailable:     "El servicio de autenticación no está disponible. Intenta más tarde.",
		msgProfileCreateFailed: "La cuenta se creó, pero hubo un error al crear el perfil. Contacta soporte.",
		msgConfirmationPending: "Cuenta creada. Confirma tu correo antes de iniciar sesión.",
		msgEnrollmentLimit:     "Solo puedes matricularte en un máximo de %d cursos.",
		msgSaveFailed:          "Error al guardar cambios. Verifica tu conexión.",
		msgNotSignedIn:         "Inicia sesión para continuar.",
		msgForbidden:           "Solo los administradores pueden editar cursos.",
		msgNotFound:            "No encontrado.",
		msgInvalidRequest:      "Solicitud inválida: %s",
	}
	for key, text := range es {
		mustSet(b, language.Spanish, key, text)
		mustSet(b, language.English, key, key)
	}
	return b
}

func mustSet(b *catalog.Builder, tag language.Tag, key, text string) {
	if err := b.SetString(tag, key, text); err != nil {
		panic(fmt.Sprintf("httpapi: bad message %q: %v", key, err))
	}
}

// printerFor picks the request's language from Accept-Language, Spanish by default.
func printerFor(r *http.Request) *message.Printer {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, idx, _ := languageMatcher.Match(tags...)
	return message.NewPrinter(supportedLanguages[idx], message.Catalog(messages))
}
