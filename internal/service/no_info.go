package service

var noInformationMessages = map[string]string{
	"en": "I'm sorry, I don't have information about that. Please contact the institution directly for help.",
	"es": "Lo siento, no tengo información sobre eso. Por favor, contacta directamente con la institución para obtener ayuda.",
	"fr": "Désolé, je n'ai pas d'informations à ce sujet. Veuillez contacter directement l'établissement pour obtenir de l'aide.",
	"de": "Es tut mir leid, dazu habe ich keine Informationen. Bitte wenden Sie sich direkt an die Einrichtung.",
	"pt": "Desculpe, não tenho informações sobre isso. Entre em contato diretamente com a instituição para obter ajuda.",
	"it": "Mi dispiace, non ho informazioni al riguardo. Contatta direttamente l'istituto per ricevere assistenza.",
	"zh": "抱歉，我没有关于这个问题的信息。请直接联系该机构获取帮助。",
	"ja": "申し訳ありませんが、その件に関する情報はありません。直接機関にお問い合わせください。",
	"ko": "죄송합니다. 해당 내용에 대한 정보가 없습니다. 기관에 직접 문의해 주세요.",
	"ar": "عذرًا، لا تتوفر لدي معلومات حول ذلك. يرجى التواصل مع المؤسسة مباشرة للحصول على المساعدة.",
	"hi": "क्षमा करें, मेरे पास इसके बारे में जानकारी नहीं है। सहायता के लिए कृपया सीधे संस्थान से संपर्क करें।",
	"ru": "Извините, у меня нет информации об этом. Пожалуйста, обратитесь напрямую в учреждение.",
	"vi": "Xin lỗi, tôi không có thông tin về vấn đề này. Vui lòng liên hệ trực tiếp với cơ sở để được hỗ trợ.",
}

// NoInformationMessage returns the fixed answer used when retrieval finds
// nothing, in language when available and in English otherwise.
func NoInformationMessage(language string) string {
	if msg, ok := noInformationMessages[language]; ok {
		return msg
	}
	return noInformationMessages["en"]
}
