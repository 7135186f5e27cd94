package response

// CrisisMessage is returned verbatim whenever a transcript signals self-harm
// intent. It is never generated.
const CrisisMessage = "I'm really glad you told me, and I'm concerned about your safety. " +
	"You deserve support right now from someone who can help. " +
	"If you're in the US, you can call or text 988 to reach the Suicide & Crisis Lifeline, any time. " +
	"If you're somewhere else, please contact your local emergency number or a crisis line near you. " +
	"If you are in immediate danger, call emergency services now. I'm here with you while you reach out."

var crisisPhrases = []string{
	"kill myself",
	"killing myself",
	"suicide",
	"suicidal",
	"end my life",
	"ending my life",
	"take my own life",
	"want to die",
	"wanna die",
	"better off dead",
	"no reason to live",
	"not worth living",
	"self harm",
	"harm myself",
	"hurt myself",
	"hurting myself",
	"cut myself",
	"cutting myself",
	"end it all",
}

// IsCrisis reports whether text contains self-harm intent language.
func IsCrisis(text string) bool {
	return containsAny(normalize(text), crisisPhrases)
}
