package formatting

func pluralize(count int, one, few, many string) string {
	if count < 0 {
		count = -count
	}
	if count%10 == 1 && count%100 != 11 {
		return one
	}
	if count%10 >= 2 && count%10 <= 4 && (count%100 < 10 || count%100 >= 20) {
		return few
	}
	return many
}

// PluralizeParticipants возвращает правильное склонение слова "участник"
func PluralizeParticipants(count int) string {
	return pluralize(count, "участник", "участника", "участников")
}
