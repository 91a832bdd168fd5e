package payment

import (
	"fmt"

	"github.com/google/uuid"
)

var chargeNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/Freeeeeet/mentor_scheduler/charges"))

// IdempotencyKey детерминированный ключ платежа (UUIDv5).
// Одинаковые (ученик, сессия, программа, попытка брони, поколение платежа) дают одинаковый ключ,
// поэтому повтор запроса клиентом после таймаута или рестарта процесса попадает в тот же платёж.
func IdempotencyKey(menteeID, sessionID int64, programID *int64, attempt, generation int) string {
	var program int64
	if programID != nil {
		program = *programID
	}

	name := fmt.Sprintf("mentee=%d;session=%d;program=%d;attempt=%d", menteeID, sessionID, program, attempt)
	if generation > 0 {
		name += fmt.Sprintf(";gen=%d", generation)
	}

	return uuid.NewSHA1(chargeNamespace, []byte(name)).String()
}

// ProgramChargeKey ключ платежа за программу: один на пару (ученик, программа),
// какую бы сессию программы ученик ни бронировал.
func ProgramChargeKey(menteeID, programID int64, generation int) string {
	name := fmt.Sprintf("mentee=%d;program=%d", menteeID, programID)
	if generation > 0 {
		name += fmt.Sprintf(";gen=%d", generation)
	}

	return uuid.NewSHA1(chargeNamespace, []byte(name)).String()
}
