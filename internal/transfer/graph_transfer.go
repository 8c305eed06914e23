package transfer

type GraphError struct {
	Message        string `json:"message"`
	Type           string `json:"type"`
	Code           int    `json:"code"`
	ErrorSubcode   int    `json:"error_subcode"`
	IsTransient    bool   `json:"is_transient"`
	ErrorUserTitle string `json:"error_user_title"`
	ErrorUserMsg   string `json:"error_user_msg"`
	FbtraceID      string `json:"fbtrace_id"`
}

type GraphErrorResponse struct {
	Error *GraphError `json:"error"`
}

type GraphToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type GraphID struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type GraphInstagramAccount struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	ProfilePictureURL string `json:"profile_picture_url"`
}

type GraphPage struct {
	ID                       string                 `json:"id"`
	Name                     string                 `json:"name"`
	AccessToken              string                 `json:"access_token"`
	Category                 string                 `json:"category"`
	Tasks                    []string               `json:"tasks"`
	InstagramBusinessAccount *GraphInstagramAccount `json:"instagram_business_account"`
	Picture                  struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
}

type GraphPages struct {
	Data []GraphPage `json:"data"`
}

type GraphMe struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
