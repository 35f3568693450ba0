package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketrouter/auth"
	"marketrouter/engine"
	"marketrouter/metrics"
	"marketrouter/model"
)

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3"`
	Password string `json:"password" binding:"required,min=6"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) issueToken(username string) (tokenResponse, error) {
	token, err := auth.GenerateJWT(username, s.jwtTTL)
	if err != nil {
		return tokenResponse{}, err
	}
	return tokenResponse{AccessToken: token, TokenType: "bearer"}, nil
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not hash password"})
		return
	}

	if err := s.engine.RegisterUser(req.Username, hash); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	resp, err := s.issueToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	user, ok := s.engine.Authenticate(req.Username)
	if !ok || !auth.CheckPassword(req.Password, user.PasswordHash) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "invalid username or password"})
		return
	}

	resp, err := s.issueToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not issue token"})
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleInfo(c *gin.Context) {
	seen := make(map[string]bool)
	assetList := make([]string, 0, len(s.symbols)*2)
	for _, symbol := range s.symbols {
		base, quote := model.SplitSymbol(symbol)
		for _, asset := range [2]string{base, quote} {
			if !seen[asset] {
				seen[asset] = true
				assetList = append(assetList, asset)
			}
		}
	}

	c.JSON(http.StatusOK, gin.H{"assets": assetList, "pairs": s.symbols})
}

type depositRequest struct {
	Asset  string  `json:"asset" binding:"required"`
	Amount float64 `json:"amount" binding:"required,gt=0"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	s.engine.Deposit(currentUser(c), req.Asset, req.Amount)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type orderRequest struct {
	TokenID  string  `json:"token_id" binding:"required,min=3"`
	Symbol   string  `json:"symbol" binding:"required"`
	Side     string  `json:"side" binding:"required,oneof=buy sell"`
	Price    float64 `json:"price" binding:"required,gt=0"`
	Quantity float64 `json:"quantity" binding:"required,gt=0"`
}

func (s *Server) handlePlaceOrder(c *gin.Context) {
	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}

	order, err := s.engine.PlaceOrder(currentUser(c), req.TokenID, req.Symbol, model.OrderSide(req.Side), req.Price, req.Quantity)
	if err != nil {
		metrics.OrdersPlacedTotal.WithLabelValues(req.Symbol, req.Side, "rejected").Inc()
		writeEngineError(c, err)
		return
	}

	metrics.OrdersPlacedTotal.WithLabelValues(req.Symbol, req.Side, "accepted").Inc()
	c.JSON(http.StatusOK, gin.H{"token_id": order.TokenID, "status": order.Status})
}

func (s *Server) handleGetOrder(c *gin.Context) {
	order, err := s.engine.GetOrder(c.Param("token_id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (s *Server) handleCancelOrder(c *gin.Context) {
	_, err := s.engine.CancelOrder(currentUser(c), c.Param("token_id"))
	if err != nil {
		writeEngineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancelled"})
}

func (s *Server) handleBalance(c *gin.Context) {
	balances := s.engine.Balances(currentUser(c))
	out := make([]gin.H, 0, len(balances))
	for asset, bal := range balances {
		out = append(out, gin.H{"asset": asset, "total": bal.Total, "available": bal.Available})
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

func (s *Server) handleLogout(c *gin.Context) {
	tokenVal, _ := c.Get("auth_token")
	token, _ := tokenVal.(string)
	auth.BlacklistToken(token, time.Now().Add(s.jwtTTL))
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeEngineError(c *gin.Context, err error) {
	var notFound *engine.NotFoundError
	if errors.As(err, &notFound) {
		c.JSON(http.StatusNotFound, gin.H{"detail": err.Error()})
		return
	}
	var rejection *engine.RejectionError
	if errors.As(err, &rejection) {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"detail": "internal error"})
}
