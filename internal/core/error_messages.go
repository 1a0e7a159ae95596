// Package core provides the business logic for bulk student imports.
//
// # Error Codes Reference
//
// This file maps technical errors to French messages with a code that
// operators can quote to support.
//
// # Import Errors (IMP001-IMP099)
//
//	IMP001 - Empty file: the sheet has a header but no data row
//	         Patterns: "empty file"
//	IMP002 - Unsupported format: only .xlsx and .csv are read
//	         Patterns: "unsupported file format"
//	IMP003 - Unreadable file: the workbook could not be decoded
//	         Patterns: "invalid spreadsheet file"
//	IMP004 - Missing column: a required column is absent from the header
//	         Patterns: "missing required column"
//	IMP005 - Validation blocked: rows must be corrected before importing
//	         Patterns: "blocked by validation"
//	IMP006 - Matricules exhausted: no free sequence left for the year
//	         Patterns: "matricule sequence exhausted"
//	IMP007 - Matricule taken: the sheet's matricule is already used
//	         Patterns: "matricule already exists"
//	IMP008 - Import in progress: the school already runs an import
//	         Patterns: "import already in progress"
//	IMP009 - Session expired: the import session is unknown
//	         Patterns: "import session not found"
//	IMP010 - Invalid state: the session cannot do this now
//	         Patterns: "invalid import state"
//	IMP011 - System busy: all import slots are taken
//	         Patterns: "too many concurrent imports"
//	IMP012 - Missing school: no school id on the request
//	         Patterns: "missing school id"
//
// # Database Errors (DB001-DB099)
//
//	DB001 - Duplicate key           Patterns: "duplicate key"
//	DB002 - Unique constraint       Patterns: "unique constraint", "violates unique"
//	DB003 - Foreign key             Patterns: "foreign key constraint", "violates foreign key"
//	DB004 - Connection refused      Patterns: "connection refused"
//	DB005 - Connection reset        Patterns: "connection reset"
//	DB006 - Timeout                 Patterns: "timeout", "context deadline exceeded"
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large        Patterns: "file too large"
//	FILE002 - No file               Patterns: "no file provided"
//
// # Request Errors (REQ001-REQ099)
//
//	REQ001 - Cancelled              Patterns: "context canceled"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Support staff should check the logs
// for the original error.
//
// Patterns are matched case-insensitively with strings.Contains; the first
// match wins, so specific patterns come before general ones.
package core

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error patterns (case-insensitive) to user messages.
// The first matching pattern wins, so order matters.
var errorPatterns = []errorPattern{
	// Import pipeline (IMP)
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "Le fichier ne contient aucune ligne d'élève",
			Action:  "Ajoutez au moins une ligne sous l'en-tête",
			Code:    "IMP001",
		},
	},
	{
		pattern: "unsupported file format",
		msg: UserMessage{
			Message: "Format de fichier non pris en charge",
			Action:  "Enregistrez le fichier au format .xlsx ou .csv",
			Code:    "IMP002",
		},
	},
	{
		pattern: "invalid spreadsheet file",
		msg: UserMessage{
			Message: "Le fichier est illisible",
			Action:  "Vérifiez que le fichier n'est pas corrompu ou protégé",
			Code:    "IMP003",
		},
	},
	{
		pattern: "missing required column",
		msg: UserMessage{
			Message: "Une colonne obligatoire est absente",
			Action:  "Les colonnes Nom, Prénom et Classe sont obligatoires; utilisez le modèle",
			Code:    "IMP004",
		},
	},
	{
		pattern: "blocked by validation",
		msg: UserMessage{
			Message: "Des lignes contiennent des erreurs",
			Action:  "Corrigez les lignes signalées puis importez à nouveau le fichier",
			Code:    "IMP005",
		},
	},
	{
		pattern: "matricule sequence exhausted",
		msg: UserMessage{
			Message: "Plus aucun matricule disponible pour cette année",
			Action:  "Renseignez la colonne Matricule pour ces élèves",
			Code:    "IMP006",
		},
	},
	{
		pattern: "matricule already exists",
		msg: UserMessage{
			Message: "Ce matricule est déjà attribué",
			Action:  "Laissez la colonne Matricule vide pour en générer un",
			Code:    "IMP007",
		},
	},
	{
		pattern: "import already in progress",
		msg: UserMessage{
			Message: "Un import est déjà en cours pour cette école",
			Action:  "Attendez la fin de l'import en cours",
			Code:    "IMP008",
		},
	},
	{
		pattern: "import session not found",
		msg: UserMessage{
			Message: "Session d'import introuvable",
			Action:  "La session a peut-être expiré; sélectionnez à nouveau le fichier",
			Code:    "IMP009",
		},
	},
	{
		pattern: "invalid import state",
		msg: UserMessage{
			Message: "Cette action n'est pas possible à cette étape de l'import",
			Action:  "Rechargez la page et recommencez",
			Code:    "IMP010",
		},
	},
	{
		pattern: "too many concurrent imports",
		msg: UserMessage{
			Message: "Le serveur traite trop d'imports",
			Action:  "Réessayez dans quelques instants",
			Code:    "IMP011",
		},
	},
	{
		pattern: "missing school id",
		msg: UserMessage{
			Message: "École non identifiée",
			Action:  "Reconnectez-vous puis réessayez",
			Code:    "IMP012",
		},
	},

	// Database (DB)
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "Cet enregistrement existe déjà",
			Action:  "Vérifiez les doublons dans le fichier",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "Cette valeur doit être unique",
			Action:  "Vérifiez les doublons dans le fichier",
			Code:    "DB002",
		},
	},
	{
		pattern: "violates unique",
		msg: UserMessage{
			Message: "Cette valeur doit être unique",
			Action:  "Vérifiez les doublons dans le fichier",
			Code:    "DB002",
		},
	},
	{
		pattern: "foreign key constraint",
		msg: UserMessage{
			Message: "L'enregistrement référencé n'existe pas",
			Action:  "Réessayez; si le problème persiste contactez le support",
			Code:    "DB003",
		},
	},
	{
		pattern: "violates foreign key",
		msg: UserMessage{
			Message: "L'enregistrement référencé n'existe pas",
			Action:  "Réessayez; si le problème persiste contactez le support",
			Code:    "DB003",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Base de données injoignable",
			Action:  "Réessayez dans quelques instants",
			Code:    "DB004",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "La connexion à la base de données a été interrompue",
			Action:  "Réessayez",
			Code:    "DB005",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "L'opération a expiré",
			Action:  "Réessayez avec un fichier plus petit",
			Code:    "DB006",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "L'opération a expiré",
			Action:  "Réessayez avec un fichier plus petit",
			Code:    "DB006",
		},
	},

	// Files (FILE)
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "Le fichier dépasse la taille maximale autorisée",
			Action:  "Découpez le fichier en plusieurs parties",
			Code:    "FILE001",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "Aucun fichier sélectionné",
			Action:  "Sélectionnez un fichier .xlsx ou .csv",
			Code:    "FILE002",
		},
	},

	// Requests (REQ)
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "L'opération a été annulée",
			Action:  "Relancez l'opération si nécessaire",
			Code:    "REQ001",
		},
	},
}

// defaultMessage is returned when no pattern matches (ERR000).
// This is the fallback for unexpected errors. Support staff should check
// application logs for the original technical error when users report ERR000.
var defaultMessage = UserMessage{
	Message: "Une erreur inattendue est survenue",
	Action:  "Réessayez ou contactez le support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// It searches through known error patterns (case-insensitive) and returns
// the first match. If no pattern matches, a generic fallback message with
// code ERR000 is returned.
//
// Example:
//
//	msg := MapError(fmt.Errorf("row 3: %w", ErrMatriculeTaken))
//	// msg.Code == "IMP007"
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code : %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing checks if an error matches a known pattern and should be shown to users.
// Returns true if the error matches a specific pattern (not the generic ERR000 fallback).
// Use this to decide whether to show the raw error or the mapped user message.

func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	msg := MapError(err)
	return msg.Code != defaultMessage.Code
}

// UserError wraps a technical error with a user-friendly message.
// The original error is preserved for logging while providing a clean message for users.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError creates a UserError by mapping a technical error to a user-friendly message.
// The returned UserError preserves the original technical error for logging via Unwrap(),
// while providing a clean user message via Error().
// Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
