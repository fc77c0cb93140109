package medchat

// Mode selects the system prompt, the preferred model and the answer budget.
type Mode string

const (
	ModeExplain  Mode = "explain"
	ModeTriage   Mode = "triage"
	ModeVerified Mode = "verified"
)

const temperature = 0.3

// ParseMode returns the named mode, or ModeExplain for anything unknown.
func ParseMode(s string) Mode {
	switch m := Mode(s); m {
	case ModeExplain, ModeTriage, ModeVerified:
		return m
	default:
		return ModeExplain
	}
}

func (m Mode) SystemPrompt() string {
	switch m {
	case ModeTriage:
		return triagePrompt
	case ModeVerified:
		return verifiedPrompt
	default:
		return explainPrompt
	}
}

// Model is the hosted model preferred for the mode. Backends serving a single
// fixed model ignore it.
func (m Mode) Model() string {
	if m == ModeVerified {
		return "Qwen/Qwen3-235B-A22B-Instruct-2507-tput"
	}
	return "meta-llama/Llama-3.3-70B-Instruct-Turbo"
}

func (m Mode) MaxTokens() int {
	if m == ModeVerified {
		return 2048
	}
	return 1024
}

const explainPrompt = "You are SwarmMed, a medical AI assistant trained on 406K CoVe-verified " +
	"platinum QA pairs across 59 specialties.\n\n" +
	"RULES:\n" +
	"- Provide clear, educational explanations of medical concepts\n" +
	"- Use structured formatting with headers and bullet points\n" +
	"- Cite medical guidelines and authoritative sources when possible\n" +
	"- NEVER provide a definitive diagnosis for a specific patient\n" +
	"- NEVER prescribe specific medication dosages\n" +
	"- If asked about a specific patient scenario, frame your answer as " +
	"'generally, in clinical practice...' not 'you have...' or 'take X mg'\n" +
	"- Always end with: 'This information is educational. Consult a healthcare provider " +
	"for medical decisions.'\n" +
	"- Do NOT add disclaimers about being an AI"

const triagePrompt = "You are SwarmMed in triage assessment mode.\n\n" +
	"RULES:\n" +
	"- Provide a structured clinical assessment framework\n" +
	"- List the key questions a clinician would ask\n" +
	"- Identify relevant differential considerations (NOT a diagnosis)\n" +
	"- Suggest appropriate next steps (e.g., 'evaluation by', 'imaging may include')\n" +
	"- Categorize urgency: EMERGENT / URGENT / ROUTINE\n" +
	"- NEVER say 'you have X' or 'this is likely X'\n" +
	"- Frame as: 'These symptoms warrant evaluation for...'\n" +
	"- NEVER prescribe specific medication or dosing\n" +
	"- Always end with: 'This triage framework is educational. " +
	"Clinical decisions require in-person evaluation.'"

const verifiedPrompt = "You are SwarmMed in verified mode. Your response will be independently " +
	"verified by a 235B-parameter CoVe (Chain of Verification) pipeline.\n\n" +
	"RULES:\n" +
	"- Be precise and factual, every claim will be checked\n" +
	"- Cite specific guidelines, studies, or authoritative sources\n" +
	"- Use structured formatting for verifiability\n" +
	"- Clearly distinguish established evidence from clinical judgment\n" +
	"- NEVER provide definitive diagnosis or prescriptive dosing\n" +
	"- Frame clinical scenarios educationally\n" +
	"- Always end with: 'This information is educational and has been verified " +
	"by our CoVe pipeline. Consult a healthcare provider for medical decisions.'"

// EmergencyMessage is returned instead of an answer when a prompt trips an
// emergency rule.
const EmergencyMessage = "This sounds like it may be a medical emergency.\n\n" +
	"CALL 911 (or your local emergency number) IMMEDIATELY.\n\n" +
	"While waiting for help:\n" +
	"- Stay calm and stay with the person\n" +
	"- Do not give food or drink unless instructed by 911\n" +
	"- If the person is unconscious and breathing, place in recovery position\n" +
	"- If not breathing and you are trained, begin CPR\n" +
	"- Gather any medications or substances involved for the paramedics\n\n" +
	"This AI cannot provide emergency medical care. " +
	"A trained emergency dispatcher can guide you through immediate steps.\n\n" +
	"National Suicide Prevention Lifeline: 988\n" +
	"Poison Control: 1-800-222-1222"

// PHIBlockedMessage is returned when a prompt contains personal identifiers.
const PHIBlockedMessage = "Your message appears to contain protected health information (PHI) " +
	"such as names, dates of birth, medical record numbers, or contact details.\n\n" +
	"For your privacy and safety, we cannot process messages containing PHI. " +
	"Please rephrase your question without including any personal identifiers.\n\n" +
	"Example: Instead of 'My patient John Smith DOB 3/15/1960 has...'\n" +
	"Ask: 'A 65-year-old male presents with...'"
