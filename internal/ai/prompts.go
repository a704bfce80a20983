package ai

// textVerifyPrompt is filled with the receipt text, file size, page size,
// file name and quoted metadata summary, in that order.
const textVerifyPrompt = `Проанализируй следующий банковский чек и определи его подлинность.

Данные чека:
%s

Технические характеристики:
- Размер файла: %s
- Размер страницы: %s
- Имя файла: %s
- Метаданные: %s

Проверь следующие аспекты:
1. Соответствие формата чека банковским стандартам
2. Корректность метаданных
3. Признаки редактирования
4. Структуру и расположение элементов
5. Наличие необходимых реквизитов

Ответ должен быть ТОЛЬКО валидным JSON в следующем формате:
{
  "conclusion": "краткий вывод о подлинности",
  "legitimacy": "legitimate|suspicious|forged",
  "confidence": число от 0 до 1,
  "warnings": ["список предупреждений"],
  "checkData": {
    "bank": "vtb|tinkoff|alfa|sber|unknown",
    "checkType": "sbp|tinkoffPhoneTransfer|alfaInternalTransfer|UnknownTransfer",
    "operationId": "ID операции если есть",
    "transferDate": "дата перевода если есть",
    "recipient": "получатель если есть",
    "recipientPhone": "телефон получателя если есть"
  },
  "technicalDetails": {
    "fileWeight": "вес файла",
    "pageSize": "размер страницы",
    "blocks": "статус блоков",
    "fonts": "статус шрифтов",
    "images": "статус изображений",
    "editor": "признаки редактирования",
    "metadata": "статус метаданных"
  }
}

Не добавляй текст до или после JSON и не используй блоки markdown.`

// visionPrompt asks for a line-oriented "Label: value" answer parsed by ParseVision.
const visionPrompt = `Analyze this bank check image and extract the following information:
1. Amount
2. Date
3. Bank name
4. Operation type
5. Sender (if available)
6. Recipient (if available)
7. Reference number or operation ID

Also verify if this appears to be a legitimate bank check and note any suspicious elements.
Include any specific details about VTB Bank (ВТБ) if present.

Format your response as:
Amount: [amount]
Date: [date]
Bank: [bank name]
Operation: [type]
Sender: [name]
Recipient: [name]
Reference: [number]
Legitimate: [yes/no]
Confidence: [0-100]
Warning: [any suspicious elements]`
